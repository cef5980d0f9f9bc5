package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-client/internal/ingest"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
)

// fakeJournal fails the first fail calls to Record.
type fakeJournal struct {
	fail  int
	calls int
	got   []models.Transition
}

func (f *fakeJournal) Record(_ context.Context, t models.Transition) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("db down")
	}
	f.got = append(f.got, t)
	return nil
}

type fakeCache struct {
	keys map[string]map[string]any
}

func (f *fakeCache) HSet(_ context.Context, key string, values map[string]any) error {
	if f.keys == nil {
		f.keys = make(map[string]map[string]any)
	}
	f.keys[key] = values
	return nil
}

var sample = models.Transition{
	RideID: "r1",
	From:   models.StatusAccepted,
	To:     models.StatusInProgress,
	Origin: models.OriginPush,
	At:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
}

func TestWriteWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeJournal{fail: 2}
	start := time.Now()
	if err := writeWithRetry(context.Background(), f, sample, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	// 10ms then 20ms
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff")
	}
}

func TestWriteWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeJournal{fail: 5}
	if err := writeWithRetry(context.Background(), f, sample, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestWriteWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeJournal{fail: 5}
	if err := writeWithRetry(ctx, f, sample, 3, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProjectorHandle(t *testing.T) {
	j := &fakeJournal{}
	c := &fakeCache{}
	p := &projector{journal: j, cache: c, attempts: 1, logger: logging.Discard()}

	b, err := ingest.EncodeTransition(sample)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(j.got) != 1 || j.got[0].RideID != "r1" || j.got[0].To != models.StatusInProgress {
		t.Fatalf("unexpected journal %+v", j.got)
	}
	if c.keys["ride:status:r1"]["status"] != "in-progress" {
		t.Fatalf("unexpected cache %+v", c.keys)
	}

	if err := p.handle(context.Background(), []byte(`{"ride_id":""}`)); !errors.Is(err, errInvalidMessage) {
		t.Fatalf("expected errInvalidMessage, got %v", err)
	}
	if j.calls != 1 {
		t.Fatal("invalid message must not reach the journal")
	}
}
