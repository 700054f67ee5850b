package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(EventLogout, func(context.Context, Event) error {
		calls++
		return errors.New("first failed")
	})
	d.Subscribe(EventLogout, func(_ context.Context, e Event) error {
		calls++
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("event defaults not applied: %+v", e)
		}
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventLogout, Actor: Actor{ID: "u-1"}})
	if err == nil {
		t.Fatalf("expected joined handler error")
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestLogHandlerWritesSecurityLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := NewInMemoryDispatcher()
	SubscribeAll(d, LogHandler(zap.New(core)))

	Publish(context.Background(), d, nil, Event{
		Type:    EventImpersonationStarted,
		Actor:   Actor{ID: "admin-1", Scope: "platform"},
		Subject: "staff-9",
		Attrs:   map[string]string{"tenant_id": "gym-7"},
	})

	entries := logs.FilterMessage("security event").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event"] != string(EventImpersonationStarted) || fields["tenant_id"] != "gym-7" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
