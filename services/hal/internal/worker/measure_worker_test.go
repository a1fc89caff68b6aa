package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dhtlink/services/hal/internal/halcore"
)

// lineTracker records how many collects run at once across adaptors.
type lineTracker struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (p *lineTracker) enter() {
	p.mu.Lock()
	p.active++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	p.mu.Unlock()
}

func (p *lineTracker) leave() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}

type fakeAdaptor struct {
	mu       sync.Mutex
	id       string
	delay    time.Duration
	notReady int // consecutive ErrNotReady before success
	failErr  error
	triggers int
	tracker  *lineTracker
}

func (f *fakeAdaptor) ID() string                      { return f.id }
func (f *fakeAdaptor) Capabilities() []halcore.CapInfo { return nil }
func (f *fakeAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.delay, nil
}
func (f *fakeAdaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	if f.tracker != nil {
		f.tracker.enter()
		defer f.tracker.leave()
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.notReady > 0 {
		f.notReady--
		return nil, halcore.ErrNotReady
	}
	return halcore.Sample{{Kind: "temperature", Payload: 245, TsMs: time.Now().UnixMilli()}}, nil
}
func (f *fakeAdaptor) Control(string, string, any) (any, error) { return nil, halcore.ErrUnsupported }

func (f *fakeAdaptor) triggerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

func recv(t *testing.T, ch <-chan halcore.Result) halcore.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for result")
	}
	return halcore.Result{}
}

func TestMeasureWorkerSuccessWithRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 1)
	w := New(halcore.WorkerConfig{
		TriggerTimeout: 5 * time.Millisecond,
		CollectTimeout: 10 * time.Millisecond,
		RetryBackoff:   2 * time.Millisecond,
		MaxRetries:     5,
		InputQueueSize: 4,
	}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "dev1", delay: time.Millisecond, notReady: 2}
	if !w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}) {
		t.Fatal("submit failed")
	}
	if r := recv(t, results); r.Err != nil || len(r.Sample) == 0 {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestMeasureWorkerGivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 1)
	w := New(halcore.WorkerConfig{RetryBackoff: time.Millisecond, MaxRetries: 2}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "dev1", notReady: 10}
	w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad})
	if r := recv(t, results); !errors.Is(r.Err, halcore.ErrNotReady) {
		t.Fatalf("want ErrNotReady after retries, got %+v", r)
	}
}

func TestMeasureWorkerErrorPathAndPrio(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 4)
	w := New(halcore.WorkerConfig{}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "devX", delay: 20 * time.Millisecond, failErr: errors.New("boom")}
	if !w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad}) {
		t.Fatal("submit failed")
	}
	// A read_now while in flight is honoured with a re-trigger after the failure.
	if !w.Submit(halcore.MeasureReq{ID: ad.id, Adaptor: ad, Prio: true}) {
		t.Fatal("prio submit failed")
	}

	for i := 0; i < 2; i++ {
		if r := recv(t, results); r.Err == nil {
			t.Fatalf("expected error result, got %+v", r)
		}
	}
	if n := ad.triggerCount(); n != 2 {
		t.Fatalf("triggers = %d, want 2", n)
	}
}

func TestMeasureWorkerSerialisesAdaptorsOnOneLine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan halcore.Result, 8)
	w := New(halcore.WorkerConfig{}, results)
	w.Start(ctx)

	tracker := &lineTracker{}
	a := &fakeAdaptor{id: "a", tracker: tracker}
	b := &fakeAdaptor{id: "b", tracker: tracker}
	w.Submit(halcore.MeasureReq{ID: a.id, Adaptor: a})
	w.Submit(halcore.MeasureReq{ID: b.id, Adaptor: b})
	recv(t, results)
	recv(t, results)

	if tracker.maxSeen != 1 {
		t.Fatalf("overlapping collects on one line: %d", tracker.maxSeen)
	}
}
