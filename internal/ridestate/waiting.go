package ridestate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/observability"
)

// Stopwatch accumulates waiting time across start/pause cycles.
type Stopwatch struct {
	mu      sync.Mutex
	now     func() time.Time
	running bool
	started time.Time
	acc     time.Duration
}

func NewStopwatch(now func() time.Time) *Stopwatch {
	if now == nil {
		now = time.Now
	}
	return &Stopwatch{now: now}
}

func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = s.now()
}

// Pause stops the clock and returns the accumulated total.
func (s *Stopwatch) Pause() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.acc += s.now().Sub(s.started)
		s.running = false
	}
	return s.acc
}

func (s *Stopwatch) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.acc = 0
}

func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.acc + s.now().Sub(s.started)
	}
	return s.acc
}

func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WaitingMeter charges waiting time to a ride. The accumulated seconds are
// submitted at most once per ride; the sent flag is set only after the
// backend accepted the charge, so a failed submission can be retried.
type WaitingMeter struct {
	api      API
	notifier notify.Notifier
	logger   *slog.Logger
	watch    *Stopwatch

	submitMu sync.Mutex
	mu       sync.Mutex
	sent     map[string]int64
}

func NewWaitingMeter(backend API, n notify.Notifier, logger *slog.Logger, now func() time.Time) *WaitingMeter {
	return &WaitingMeter{api: backend, notifier: n, logger: logger, watch: NewStopwatch(now), sent: make(map[string]int64)}
}

func (w *WaitingMeter) Start()         { w.watch.Start() }
func (w *WaitingMeter) Running() bool  { return w.watch.Running() }
func (w *WaitingMeter) Seconds() int64 { return int64(w.watch.Elapsed() / time.Second) }

// Reset zeroes the stopwatch. A charge already sent for a ride stays sent.
func (w *WaitingMeter) Reset() { w.watch.Reset() }

// Pause stops the clock and submits the charge for rideID.
func (w *WaitingMeter) Pause(ctx context.Context, rideID string) error {
	w.watch.Pause()
	return w.Submit(ctx, rideID)
}

// Sent reports whether a charge was accepted for rideID.
func (w *WaitingMeter) Sent(rideID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sent[rideID]
	return ok
}

// Submit sends the accumulated seconds for rideID unless a charge was
// already accepted for it. Nothing is sent for zero seconds.
func (w *WaitingMeter) Submit(ctx context.Context, rideID string) error {
	if rideID == "" {
		return ErrNoRide
	}
	w.submitMu.Lock()
	defer w.submitMu.Unlock()
	if w.Sent(rideID) {
		observability.WaitingCharges.WithLabelValues("duplicate").Inc()
		return nil
	}
	secs := w.Seconds()
	if secs <= 0 {
		return nil
	}
	if err := w.api.SubmitWaiting(ctx, rideID, secs); err != nil {
		observability.WaitingCharges.WithLabelValues("failed").Inc()
		return err
	}
	w.mu.Lock()
	w.sent[rideID] = secs
	w.mu.Unlock()
	observability.WaitingCharges.WithLabelValues("sent").Inc()
	w.logger.Info("waiting time submitted", "ride_id", rideID, "seconds", secs)
	w.notifier.Notify(notify.Success, "Waiting time recorded")
	return nil
}
