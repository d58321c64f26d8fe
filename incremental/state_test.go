// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package incremental

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/rangeinc/osfs"
	"go.chromium.org/infra/build/rangeinc/rangesfile"
	"go.chromium.org/infra/build/rangeinc/srcrange"
)

const compiledA = `func f() {
  return 1
}
var x = 1
`

// function body of f in compiledA.
var localScopeA = rng(1, 10, 3, 2)

type unitFiles struct {
	dir     string
	primary string
	job     *fakeJob
}

func setupUnit(t *testing.T, dir, name string) unitFiles {
	t.Helper()
	u := unitFiles{
		dir:     dir,
		primary: filepath.Join(dir, name+".src"),
	}
	u.job = &fakeJob{
		name:    "compile " + name,
		primary: u.primary,
		outputs: map[OutputKind]string{
			CompiledSource: filepath.Join(dir, "out", name+".compiled"),
			SourceRanges:   filepath.Join(dir, "out", name+".ranges"),
		},
	}
	err := os.MkdirAll(filepath.Join(dir, "out"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func writeFile(t *testing.T, fname, content string, mtime time.Time) {
	t.Helper()
	err := os.WriteFile(fname, []byte(content), 0644)
	if err != nil {
		t.Fatal(err)
	}
	err = os.Chtimes(fname, mtime, mtime)
	if err != nil {
		t.Fatal(err)
	}
}

func writeRecord(t *testing.T, fname string, c *rangesfile.Contents, mtime time.Time) {
	t.Helper()
	buf, err := rangesfile.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, fname, string(buf), mtime)
}

func exists(fname string) bool {
	_, err := os.Stat(fname)
	return err == nil
}

var (
	older = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer = older.Add(time.Hour)
)

func TestLoadAll(t *testing.T) {
	ctx := context.Background()
	record := &rangesfile.Contents{
		LocalScopeRanges:           srcrange.Ranges{localScopeA},
		UnparsedRangesByDependency: map[string]srcrange.Ranges{},
	}
	for _, tc := range []struct {
		name           string
		current        string
		compiledMtime  time.Time
		currentMtime   time.Time
		wantChanged    srcrange.Ranges
		wantNonlocal   srcrange.Ranges
		compiledSource string
	}{
		{
			name:          "compiled source newer",
			current:       "func f() {\n  return 2\n}\nvar x = 2\n",
			compiledMtime: newer,
			currentMtime:  older,
			wantChanged:   srcrange.Ranges{},
		},
		{
			name:          "same content",
			current:       compiledA,
			compiledMtime: older,
			currentMtime:  newer,
			wantChanged:   srcrange.Ranges{},
		},
		{
			name:          "same mtime",
			current:       compiledA,
			compiledMtime: older,
			currentMtime:  older,
			wantChanged:   srcrange.Ranges{},
		},
		{
			name:          "local change",
			current:       "func f() {\n  return 2\n}\nvar x = 1\n",
			compiledMtime: older,
			currentMtime:  newer,
			wantChanged:   srcrange.Ranges{rng(2, 10, 2, 11)},
		},
		{
			name:          "declaration inserted after local scope",
			current:       "func f() {\n  return 1\n} func g() {}\nvar x = 1\n",
			compiledMtime: older,
			currentMtime:  newer,
			wantChanged:   srcrange.Ranges{rng(3, 1, 4, 1)},
			wantNonlocal:  srcrange.Ranges{rng(3, 1, 4, 1)},
		},
		{
			name:          "declaration appended",
			current:       compiledA + "var y = 2\n",
			compiledMtime: older,
			currentMtime:  newer,
			wantChanged:   srcrange.Ranges{rng(4, 10, 5, 2)},
			wantNonlocal:  srcrange.Ranges{rng(4, 10, 5, 2)},
		},
		{
			name:          "nonlocal change",
			current:       "func f() {\n  return 2\n}\nvar x = 2\n",
			compiledMtime: older,
			currentMtime:  newer,
			wantChanged:   srcrange.Ranges{rng(2, 10, 2, 11), rng(4, 9, 4, 10)},
			wantNonlocal:  srcrange.Ranges{rng(4, 9, 4, 10)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u := setupUnit(t, t.TempDir(), "a")
			writeFile(t, u.primary, tc.current, tc.currentMtime)
			writeFile(t, u.job.outputs[CompiledSource], compiledA, tc.compiledMtime)
			writeRecord(t, u.job.outputs[SourceRanges], record, tc.compiledMtime)

			diag := &fakeDiagnostics{}
			infos, err := LoadAll(ctx, []Job{u.job}, Options{
				FS:          osfs.New("test", nil),
				Diagnostics: diag,
			})
			if err != nil {
				t.Fatalf("LoadAll(...)=%v; want nil error", err)
			}
			if len(infos.Failed) > 0 {
				t.Fatalf("LoadAll(...).Failed=%v; want empty", infos.Failed)
			}
			got, ok := infos.States[u.primary]
			if !ok {
				t.Fatalf("LoadAll(...).States[%q] not found", u.primary)
			}
			want := &State{
				Record:   record,
				Changed:  tc.wantChanged,
				Nonlocal: tc.wantNonlocal,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("state diff -want +got:\n%s", diff)
			}
			if len(diag.warnings) > 0 {
				t.Errorf("warnings=%v; want none", diag.warnings)
			}
		})
	}
}

func TestLoadAll_RemovedPrimary(t *testing.T) {
	ctx := context.Background()
	u := setupUnit(t, t.TempDir(), "c")
	compiledSource := u.job.outputs[CompiledSource]
	rangesPath := u.job.outputs[SourceRanges]
	writeFile(t, compiledSource, compiledA, older)
	writeRecord(t, rangesPath, &rangesfile.Contents{}, older)

	diag := &fakeDiagnostics{}
	infos, err := LoadAll(ctx, []Job{u.job}, Options{
		FS:          osfs.New("test", nil),
		Diagnostics: diag,
	})
	if err != nil {
		t.Fatalf("LoadAll(...)=%v; want nil error", err)
	}
	got, ok := infos.States[u.primary]
	if !ok {
		t.Fatalf("LoadAll(...).States[%q] not found", u.primary)
	}
	if diff := cmp.Diff(WholeFileChanged(), got); diff != "" {
		t.Errorf("state diff -want +got:\n%s", diff)
	}
	if !got.Changed.IsWholeFile() || !got.Nonlocal.IsWholeFile() {
		t.Errorf("state=%v; want whole file changed", got)
	}
	for _, fname := range []string{compiledSource, rangesPath} {
		if exists(fname) {
			t.Errorf("%s exists; want removed", fname)
		}
	}
	if len(diag.warnings) > 0 {
		t.Errorf("warnings=%v; want none", diag.warnings)
	}
}

func TestLoadAll_NoUsableState(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name     string
		setup    func(t *testing.T, u unitFiles)
		wantWarn WarnKind
	}{
		{
			name: "no ranges file",
			setup: func(t *testing.T, u unitFiles) {
				writeFile(t, u.job.outputs[CompiledSource], compiledA, older)
			},
			wantWarn: WarnUnableToLoadRanges,
		},
		{
			name: "bad ranges file",
			setup: func(t *testing.T, u unitFiles) {
				writeFile(t, u.job.outputs[CompiledSource], compiledA, older)
				writeFile(t, u.job.outputs[SourceRanges], "local_scope_ranges: []\n", older)
			},
			wantWarn: WarnBadRangesFile,
		},
		{
			name: "no compiled source",
			setup: func(t *testing.T, u unitFiles) {
				writeRecord(t, u.job.outputs[SourceRanges], &rangesfile.Contents{}, older)
			},
			wantWarn: WarnCannotStat,
		},
		{
			name: "no compiled source output",
			setup: func(t *testing.T, u unitFiles) {
				writeRecord(t, u.job.outputs[SourceRanges], &rangesfile.Contents{}, older)
				delete(u.job.outputs, CompiledSource)
			},
			wantWarn: WarnUnableToLoadCompiledSource,
		},
		{
			name: "unreadable compiled source",
			setup: func(t *testing.T, u unitFiles) {
				err := os.Mkdir(u.job.outputs[CompiledSource], 0755)
				if err != nil {
					t.Fatal(err)
				}
				err = os.Chtimes(u.job.outputs[CompiledSource], older, older)
				if err != nil {
					t.Fatal(err)
				}
				writeRecord(t, u.job.outputs[SourceRanges], &rangesfile.Contents{}, older)
			},
			wantWarn: WarnUnableToLoadCompiledSource,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			u := setupUnit(t, t.TempDir(), "a")
			writeFile(t, u.primary, compiledA, newer)
			tc.setup(t, u)

			diag := &fakeDiagnostics{}
			infos, err := LoadAll(ctx, []Job{u.job}, Options{
				FS:          osfs.New("test", nil),
				Diagnostics: diag,
			})
			if err != nil {
				t.Fatalf("LoadAll(...)=%v; want nil error", err)
			}
			if st, ok := infos.States[u.primary]; ok {
				t.Errorf("LoadAll(...).States[%q]=%v; want no state", u.primary, st)
			}
			if !infos.Lacking(u.primary) {
				t.Errorf("Lacking(%q)=false; want true", u.primary)
			}
			if infos.Failed[u.primary] == nil {
				t.Errorf("LoadAll(...).Failed[%q]=nil; want error", u.primary)
			}
			if !diag.hasWarning(tc.wantWarn) {
				t.Errorf("warnings=%v; want %v", diag.warnings, tc.wantWarn)
			}
			for _, kind := range []OutputKind{CompiledSource, SourceRanges} {
				if fname := u.job.outputs[kind]; exists(fname) {
					t.Errorf("%s %s exists; want removed", kind, fname)
				}
			}
		})
	}
}

// faultyFS fails some operations of the OS filesystem.
type faultyFS struct {
	*osfs.OSFS
	statErrs  map[string]error
	removeErr error
}

func (f faultyFS) ModTime(ctx context.Context, name string) (time.Time, error) {
	if err := f.statErrs[name]; err != nil {
		return time.Time{}, err
	}
	return f.OSFS.ModTime(ctx, name)
}

func (f faultyFS) Remove(ctx context.Context, name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.OSFS.Remove(ctx, name)
}

func TestLoadAll_StatErrorOnPrimary(t *testing.T) {
	ctx := context.Background()
	u := setupUnit(t, t.TempDir(), "a")
	writeFile(t, u.primary, compiledA, newer)
	writeFile(t, u.job.outputs[CompiledSource], compiledA, older)
	writeRecord(t, u.job.outputs[SourceRanges], &rangesfile.Contents{}, older)

	diag := &fakeDiagnostics{}
	infos, err := LoadAll(ctx, []Job{u.job}, Options{
		FS: faultyFS{
			OSFS:     osfs.New("test", nil),
			statErrs: map[string]error{u.primary: fs.ErrPermission},
		},
		Diagnostics: diag,
	})
	if err != nil {
		t.Fatalf("LoadAll(...)=%v; want nil error", err)
	}
	if !infos.Lacking(u.primary) {
		t.Errorf("Lacking(%q)=false; want true", u.primary)
	}
	if !errors.Is(infos.Failed[u.primary], fs.ErrPermission) {
		t.Errorf("LoadAll(...).Failed[%q]=%v; want %v", u.primary, infos.Failed[u.primary], fs.ErrPermission)
	}
	if !diag.hasWarning(WarnCannotStat) {
		t.Errorf("warnings=%v; want %v", diag.warnings, WarnCannotStat)
	}
	if !exists(u.primary) {
		t.Errorf("%s removed; want kept", u.primary)
	}
}

func TestLoadAll_CannotRemove(t *testing.T) {
	ctx := context.Background()
	u := setupUnit(t, t.TempDir(), "a")
	writeFile(t, u.primary, compiledA, newer)
	writeFile(t, u.job.outputs[CompiledSource], compiledA, older)

	diag := &fakeDiagnostics{}
	infos, err := LoadAll(ctx, []Job{u.job}, Options{
		FS: faultyFS{
			OSFS:      osfs.New("test", nil),
			removeErr: fs.ErrPermission,
		},
		Diagnostics: diag,
	})
	if err != nil {
		t.Fatalf("LoadAll(...)=%v; want nil error", err)
	}
	if !infos.Lacking(u.primary) {
		t.Errorf("Lacking(%q)=false; want true", u.primary)
	}
	if !diag.hasWarning(WarnUnableToLoadRanges) {
		t.Errorf("warnings=%v; want %v", diag.warnings, WarnUnableToLoadRanges)
	}
	if !diag.hasWarning(WarnCannotRemove) {
		t.Errorf("warnings=%v; want %v", diag.warnings, WarnCannotRemove)
	}
}

// An insertion touching a local scope of a.src must reach b.src, which
// parsed everything of a.src but that scope.
func TestLoadAllDecide_InsertionAtScopeEdge(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		current string
		local   srcrange.Ranges
	}{
		{
			name:    "after closing brace",
			current: "func f() {\n  return 1\n} func g() {}\nvar x = 1\n",
			local:   srcrange.Ranges{localScopeA},
		},
		{
			name:    "appended at eof",
			current: compiledA + "func g() {}\n",
			local:   srcrange.Ranges{localScopeA, rng(4, 1, 5, 1)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			a := setupUnit(t, dir, "a")
			b := setupUnit(t, dir, "b")
			writeFile(t, a.primary, tc.current, newer)
			writeFile(t, a.job.outputs[CompiledSource], compiledA, older)
			writeRecord(t, a.job.outputs[SourceRanges], &rangesfile.Contents{
				LocalScopeRanges:           tc.local,
				UnparsedRangesByDependency: map[string]srcrange.Ranges{},
			}, older)
			writeFile(t, b.primary, "var y = x\n", older)
			writeFile(t, b.job.outputs[CompiledSource], "var y = x\n", newer)
			writeRecord(t, b.job.outputs[SourceRanges], &rangesfile.Contents{
				LocalScopeRanges: srcrange.Ranges{},
				UnparsedRangesByDependency: map[string]srcrange.Ranges{
					a.primary: tc.local,
				},
			}, newer)

			jobs := []Job{a.job, b.job}
			infos, err := LoadAll(ctx, jobs, Options{FS: osfs.New("test", nil)})
			if err != nil {
				t.Fatalf("LoadAll(...)=%v; want nil error", err)
			}
			if len(infos.States[a.primary].Nonlocal) == 0 {
				t.Fatalf("Nonlocal of %s is empty; changed=%v", a.primary, infos.States[a.primary].Changed)
			}
			got := Decide(infos.States, jobs, nil)
			want := []string{"compile a", "compile b"}
			if diff := cmp.Diff(want, names(got.Needed)); diff != "" {
				t.Errorf("Decide(...).Needed diff -want +got:\n%s", diff)
			}
		})
	}
}

func TestLoadAll_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	record := &rangesfile.Contents{
		LocalScopeRanges:           srcrange.Ranges{localScopeA},
		UnparsedRangesByDependency: map[string]srcrange.Ranges{},
	}
	var jobs []Job
	for _, name := range []string{"a", "b", "c", "d"} {
		u := setupUnit(t, dir, name)
		writeFile(t, u.primary, compiledA, older)
		writeFile(t, u.job.outputs[CompiledSource], compiledA, newer)
		if name == "c" {
			writeFile(t, u.job.outputs[SourceRanges], "broken", newer)
		} else {
			writeRecord(t, u.job.outputs[SourceRanges], record, newer)
		}
		jobs = append(jobs, u.job)
	}
	// link job, and duplicated compile of a.
	jobs = append(jobs, &fakeJob{name: "link"}, jobs[0])

	infos, err := LoadAll(ctx, jobs, Options{
		FS:          osfs.New("test", nil),
		Parallelism: 2,
	})
	if err != nil {
		t.Fatalf("LoadAll(...)=%v; want nil error", err)
	}
	var got []string
	for primary := range infos.States {
		got = append(got, filepath.Base(primary))
	}
	want := []string{"a.src", "b.src", "d.src"}
	if diff := cmp.Diff(want, got, cmpSortStrings); diff != "" {
		t.Errorf("loaded states diff -want +got:\n%s", diff)
	}
	if len(infos.Failed) != 1 || infos.Failed[filepath.Join(dir, "c.src")] == nil {
		t.Errorf("LoadAll(...).Failed=%v; want c.src only", infos.Failed)
	}
	if !errors.Is(infos.Failed[filepath.Join(dir, "c.src")], rangesfile.ErrFormat) {
		t.Errorf("LoadAll(...).Failed[c.src]=%v; want %v", infos.Failed[filepath.Join(dir, "c.src")], rangesfile.ErrFormat)
	}
}

func TestLoadAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u := setupUnit(t, t.TempDir(), "a")
	_, err := LoadAll(ctx, []Job{u.job}, Options{FS: osfs.New("test", nil)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LoadAll(canceled)=%v; want %v", err, context.Canceled)
	}
}
