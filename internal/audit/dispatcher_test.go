package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcherStampsSortableIDs(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: TypeLogin, UserID: "u1"})
	}
	d.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sink.Events():
			if ev.Timestamp.IsZero() {
				t.Fatal("expected timestamp to be stamped")
			}
			if _, err := ulid.Parse(ev.ID); err != nil {
				t.Fatalf("expected ulid id, got %q: %v", ev.ID, err)
			}
			ids = append(ids, ev.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Fatalf("ids not monotonic: %v", ids)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: TypeLogout})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	close(block)
	d.Close()

	// emits after close are ignored
	d.Emit(context.Background(), Event{EventType: TypeLogout})
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher drops nothing")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "x", EventType: TypeForcedLogout, Epoch: 3, Success: true})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["event_type"] != TypeForcedLogout || got["epoch"] != float64(3) {
		t.Fatalf("unexpected payload: %s", line)
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	NewZapSink(zap.New(core)).Emit(context.Background(), Event{ID: "x", EventType: TypeLogin, UserID: "u1", Role: "ADMIN", Success: true})

	entries := logs.FilterMessage(TypeLogin).All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "audit" {
		t.Fatalf("expected audit logger name, got %q", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["user_id"] != "u1" {
		t.Fatalf("missing user_id: %v", entries[0].ContextMap())
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
}

func TestDispatcherBlockingEmitStopsWithContext(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(block)
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 3; i++ {
			d.Emit(ctx, Event{EventType: TypeLogout})
		}
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit ignored the caller's context")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected the abandoned event to count as dropped")
	}
}
