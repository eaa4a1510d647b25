package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/hylla/opportune/internal/app"
)

func TestBusDeliversToNamedAndWildcardSubscribers(t *testing.T) {
	bus := New(WithBufferSize(4))
	named, stopNamed := bus.Subscribe(app.EventCancelled)
	all, stopAll := bus.Subscribe(Wildcard)
	defer stopNamed()
	defer stopAll()

	ctx := context.Background()
	for _, name := range []app.EventName{app.EventCreated, app.EventCancelled} {
		if err := bus.Publish(ctx, app.Event{Name: name, OpportunityID: "o1"}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if ev := <-named; ev.Name != app.EventCancelled {
		t.Fatalf("unexpected named event %#v", ev)
	}
	if len(named) != 0 {
		t.Fatalf("expected one named event, %d left", len(named))
	}
	first, second := <-all, <-all
	if first.Name != app.EventCreated || second.Name != app.EventCancelled {
		t.Fatalf("expected wildcard events in publish order, got %s then %s", first.Name, second.Name)
	}
}

func TestBusHandlersRunInOrder(t *testing.T) {
	bus := New()
	var (
		mu  sync.Mutex
		got []string
	)
	bus.On(app.EventUpdated, func(_ context.Context, ev app.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.OpportunityID)
	})
	for _, id := range []string{"a", "b", "c"} {
		if err := bus.Publish(context.Background(), app.Event{Name: app.EventUpdated, OpportunityID: id}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if strings.Join(got, "") != "abc" {
		t.Fatalf("unexpected handler order %v", got)
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := New(WithBufferSize(1))
	_, stop := bus.Subscribe(Wildcard)
	defer stop()
	for range 3 {
		if err := bus.Publish(context.Background(), app.Event{Name: app.EventCreated}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if bus.Dropped() != 2 {
		t.Fatalf("expected two dropped deliveries, got %d", bus.Dropped())
	}
}

func TestBusUnsubscribeAndClose(t *testing.T) {
	bus := New()
	ch, stop := bus.Subscribe(app.EventCreated)
	stop()
	stop()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}

	live, _ := bus.Subscribe(app.EventCreated)
	bus.Close()
	if _, ok := <-live; ok {
		t.Fatal("expected channel closed after Close")
	}
	if err := bus.Publish(context.Background(), app.Event{Name: app.EventCreated}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Publish(ctx, app.Event{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Formatter: log.LogfmtFormatter})
	bus := New()
	bus.On(Wildcard, LogHandler(logger))

	err := bus.Publish(context.Background(), app.Event{
		Name:          app.EventSubmitted,
		OpportunityID: "o1",
		Status:        "submitted",
		ActorID:       "sm-1",
		Data:          map[string]string{"operation": "SubmitOpportunity"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"event=opportunity.submitted", "opportunity_id=o1", "operation=SubmitOpportunity"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output %q", want, out)
		}
	}
}
