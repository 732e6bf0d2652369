package search

import (
	"context"
	"sync"
	"time"
)

type fakeTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) ScheduleAfter(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return &fakeTimerHandle{s: s, t: t}
}

// Flush runs every pending timer as if its delay had elapsed.
func (s *fakeScheduler) Flush() int {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

func (s *fakeScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type fakeTimerHandle struct {
	s *fakeScheduler
	t *fakeTimer
}

func (h *fakeTimerHandle) Cancel() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.t.fired || h.t.cancelled {
		return false
	}
	h.t.cancelled = true
	return true
}

type reply struct {
	page *Page
	err  error
}

type pendingCall struct {
	req   Request
	reply chan reply
}

// fakeService answers through handler when set, otherwise queues each call
// on calls until the test replies.
type fakeService struct {
	mu       sync.Mutex
	handler  func(Request) (*Page, error)
	requests []Request
	calls    chan *pendingCall
}

func newFakeService(handler func(Request) (*Page, error)) *fakeService {
	return &fakeService{handler: handler, calls: make(chan *pendingCall, 16)}
}

func (s *fakeService) Search(_ context.Context, req Request) (*Page, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	call := &pendingCall{req: req, reply: make(chan reply, 1)}
	s.calls <- call
	r := <-call.reply
	return r.page, r.err
}

func (s *fakeService) Item(context.Context, string) (*Item, error) {
	return nil, ErrNotFound
}

func (s *fakeService) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func titled(page, pages, total int, titles ...string) *Page {
	p := &Page{Total: total, Page: page, Pages: pages}
	for i, t := range titles {
		p.Results = append(p.Results, ResultCard{ID: int64(i + 1), Title: t, Slug: t})
	}
	return p
}

type recordingStore struct {
	mu    sync.Mutex
	saved [][]Field
}

func (r *recordingStore) SaveFields(fields []Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, fields)
	return nil
}
