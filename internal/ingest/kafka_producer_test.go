package ingest

import (
	"testing"
	"time"

	"github.com/example/ride-client/internal/models"
)

func TestTransitionCodec(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := models.Transition{RideID: "r1", ActorID: "c1", From: models.StatusPending, To: models.StatusAccepted, Origin: models.OriginPush, At: at}
	b, err := EncodeTransition(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTransition(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func TestDecodeTransitionRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"missing ride":   `{"to":"accepted"}`,
		"unknown status": `{"ride_id":"r1","to":"teleported"}`,
	}
	for name, raw := range cases {
		if _, err := DecodeTransition([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := EncodeTransition(models.Transition{}); err == nil {
		t.Fatal("expected error for empty ride id")
	}
}
