package transport

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSpool_FIFO(t *testing.T) {
	t.Parallel()

	s, err := OpenSpool(":memory:")
	if err != nil {
		t.Fatalf("OpenSpool: %v", err)
	}
	defer s.Close()

	for _, kind := range []string{"first", "second", "third"} {
		out := Outbound{Kind: kind, Body: json.RawMessage(`{"n":1}`)}
		if err := s.Enqueue(out); err != nil {
			t.Fatalf("Enqueue(%q): %v", kind, err)
		}
	}

	if n, err := s.Depth(); err != nil || n != 3 {
		t.Fatalf("Depth = %d, %v, want 3, nil", n, err)
	}

	for _, want := range []string{"first", "second", "third"} {
		id, out, ok, err := s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			t.Fatalf("Next: queue empty, want %q", want)
		}
		if out.Kind != want {
			t.Fatalf("Next kind = %q, want %q", out.Kind, want)
		}
		if err := s.Ack(id); err != nil {
			t.Fatalf("Ack(%d): %v", id, err)
		}
	}

	if _, _, ok, err := s.Next(); err != nil || ok {
		t.Fatalf("Next on empty spool: ok=%v err=%v, want false, nil", ok, err)
	}
}

func TestSpool_NextWithoutAckKeepsPayload(t *testing.T) {
	t.Parallel()

	s, err := OpenSpool(":memory:")
	if err != nil {
		t.Fatalf("OpenSpool: %v", err)
	}
	defer s.Close()

	if err := s.Enqueue(Outbound{Kind: "ack"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Peeking twice without Ack must return the same payload.
	id1, _, _, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	id2, _, ok, err := s.Next()
	if err != nil || !ok {
		t.Fatalf("second Next: ok=%v err=%v", ok, err)
	}
	if id1 != id2 {
		t.Fatalf("ids differ across peeks: %d vs %d", id1, id2)
	}
}

func TestSpool_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "spool.db")

	s, err := OpenSpool(path)
	if err != nil {
		t.Fatalf("OpenSpool: %v", err)
	}
	if err := s.Enqueue(Outbound{Kind: "durable", Body: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenSpool(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	_, out, ok, err := s2.Next()
	if err != nil || !ok {
		t.Fatalf("Next after reopen: ok=%v err=%v", ok, err)
	}
	if out.Kind != "durable" {
		t.Fatalf("kind = %q, want %q", out.Kind, "durable")
	}
}
