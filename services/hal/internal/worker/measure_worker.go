// services/hal/internal/worker/measure_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"dhtlink/services/hal/internal/halcore"
	"dhtlink/services/hal/internal/util"
)

// MeasureWorker owns one physical line. Every Trigger and Collect for the
// adaptors on that line runs on the worker goroutine, so two acquisitions
// never overlap.
type MeasureWorker struct {
	cfg  halcore.WorkerConfig
	reqQ chan halcore.MeasureReq
	sink chan<- halcore.Result // fan-in sink owned by service

	inflight map[string]*job // id -> job awaiting collect
	again    map[string]bool // id -> read_now arrived while in flight
	timer    *time.Timer
}

type job struct {
	id      string
	adaptor halcore.Adaptor
	due     time.Time
	retries int
}

func New(cfg halcore.WorkerConfig, sink chan<- halcore.Result) *MeasureWorker {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 100 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 15
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 8
	}
	return &MeasureWorker{
		cfg:      cfg,
		reqQ:     make(chan halcore.MeasureReq, cfg.InputQueueSize),
		sink:     sink,
		inflight: map[string]*job{},
		again:    map[string]bool{},
		timer:    time.NewTimer(time.Hour),
	}
}

// Submit queues a request without blocking. Priority requests wait briefly
// for room.
func (w *MeasureWorker) Submit(req halcore.MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
	}
	if !req.Prio {
		return false
	}
	select {
	case w.reqQ <- req:
		return true
	case <-time.After(5 * time.Millisecond):
		return false
	}
}

func (w *MeasureWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		util.DrainTimer(w.timer)
	}
	go w.loop(ctx)
}

func (w *MeasureWorker) loop(ctx context.Context) {
	defer w.timer.Stop()
	for {
		if next := w.nextDue(); next.IsZero() {
			util.ResetTimer(w.timer, time.Hour)
		} else {
			util.ResetTimer(w.timer, time.Until(next))
		}
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqQ:
			if _, busy := w.inflight[req.ID]; busy {
				if req.Prio {
					w.again[req.ID] = true
				}
				continue
			}
			w.trigger(ctx, &job{id: req.ID, adaptor: req.Adaptor})
		case <-w.timer.C:
			w.collectDue(ctx, time.Now())
		}
	}
}

// trigger starts a cycle and parks the job until its collect time.
func (w *MeasureWorker) trigger(ctx context.Context, j *job) {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := j.adaptor.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(ctx, halcore.Result{ID: j.id, Err: err})
		return
	}
	j.retries = 0
	j.due = time.Now().Add(after)
	w.inflight[j.id] = j
}

func (w *MeasureWorker) collectDue(ctx context.Context, now time.Time) {
	for id, j := range w.inflight {
		if now.Before(j.due) {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := j.adaptor.Collect(cctx)
		cancel()

		if errors.Is(err, halcore.ErrNotReady) && j.retries < w.cfg.MaxRetries {
			j.retries++
			j.due = now.Add(w.cfg.RetryBackoff)
			continue
		}
		delete(w.inflight, id)
		w.emit(ctx, halcore.Result{ID: id, Sample: s, Err: err})

		// A read_now that arrived mid-cycle after a failure gets a fresh attempt.
		if w.again[id] {
			delete(w.again, id)
			if err != nil {
				w.trigger(ctx, j)
			}
		}
	}
}

func (w *MeasureWorker) emit(ctx context.Context, r halcore.Result) {
	select {
	case w.sink <- r:
	case <-ctx.Done():
	}
}

func (w *MeasureWorker) nextDue() time.Time {
	var min time.Time
	for _, j := range w.inflight {
		if min.IsZero() || j.due.Before(min) {
			min = j.due
		}
	}
	return min
}
