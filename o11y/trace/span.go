// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace manages execution traces.
package trace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is a trace context.
type Context struct {
	traceID [16]byte

	mu sync.Mutex
	// first span is the top span in the trace.
	spans []*Span
}

// New creates a new context for id.
// id is usually a uuid. Other ids are hashed.
func New(id string) *Context {
	u, err := uuid.Parse(id)
	if err != nil {
		s := sha256.Sum256([]byte(id))
		copy(u[:], s[:])
	}
	return &Context{
		traceID: ([16]byte)(u),
	}
}

// ID returns the trace id.
func (t *Context) ID() string {
	return hex.EncodeToString(t.traceID[:])
}

// NewSpan creates new span in the parent.
func (t *Context) NewSpan(name string, parent *Span) *Span {
	if t == nil {
		return nil
	}
	var spanID [8]byte
	t.mu.Lock()
	defer t.mu.Unlock()
	id := fmt.Sprintf("%s-%d", name, len(t.spans))
	if parent == nil && len(t.spans) > 0 {
		parent = t.spans[0]
	}
	s := sha256.Sum256([]byte(id))
	copy(spanID[:], s[:])
	span := &Span{
		t:      t,
		spanID: spanID,
		parent: parent,
		name:   name,
		start:  time.Now(),
		attrs:  make(map[string]any),
	}
	t.spans = append(t.spans, span)
	return span
}

// Spans returns span data in the trace context, in creation order.
func (t *Context) Spans() []SpanData {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	data := make([]SpanData, 0, len(t.spans))
	for _, s := range t.spans {
		data = append(data, s.data())
	}
	return data
}

type contextKeyType int

const (
	contextKey contextKeyType = iota
	spanKey
)

// NewContext returns new context with a trace context.
func NewContext(ctx context.Context, t *Context) context.Context {
	return context.WithValue(ctx, contextKey, t)
}

// NewSpan returns new contexts and span.
// If no trace context, returns nil span.
func NewSpan(ctx context.Context, name string) (context.Context, *Span) {
	t, ok := ctx.Value(contextKey).(*Context)
	if !ok || t == nil {
		return ctx, nil
	}
	parent, _ := ctx.Value(spanKey).(*Span)
	span := t.NewSpan(name, parent)
	return context.WithValue(ctx, spanKey, span), span
}

// Span is a trace span.
type Span struct {
	t      *Context
	spanID [8]byte
	parent *Span

	mu    sync.Mutex
	name  string
	start time.Time
	end   time.Time
	attrs map[string]any
	err   error
}

// SetAttr sets attributes in the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Close closes the span with err.
func (s *Span) Close(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = time.Now()
	s.err = err
}

func (s *Span) data() SpanData {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.end
	if end.IsZero() {
		end = time.Now()
	}
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	sd := SpanData{
		Name:  s.name,
		ID:    hex.EncodeToString(s.spanID[:]),
		Start: s.start,
		End:   end,
		Attrs: attrs,
		Err:   s.err,
	}
	if s.parent != nil {
		sd.Parent = hex.EncodeToString(s.parent.spanID[:])
	}
	return sd
}

// SpanData is a span data.
type SpanData struct {
	Name   string
	ID     string
	Parent string
	Start  time.Time
	End    time.Time
	Attrs  map[string]any
	Err    error
}

// Duration returns duration of the span.
func (sd SpanData) Duration() time.Duration {
	return sd.End.Sub(sd.Start)
}
