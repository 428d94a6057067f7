package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSink_SendDeliversToWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewSink(srv.URL, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	sink.Send(Event{Kind: "test", Symbol: "AAPL.US", Message: "hello"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Symbol != "AAPL.US" {
		t.Fatalf("expected one delivered event, got %+v", received)
	}
}

func TestSink_OverflowDropsOldest(t *testing.T) {
	sink := NewSink("http://127.0.0.1:1/unreachable", zerolog.Nop())
	for i := 0; i < queueCapacity+10; i++ {
		sink.Send(Event{Message: strconv.Itoa(i)})
	}
	sink.mu.Lock()
	n := len(sink.events)
	first := sink.events[0].Message
	sink.mu.Unlock()
	if n != queueCapacity {
		t.Errorf("expected queue capped at %d, got %d", queueCapacity, n)
	}
	if first != "10" {
		t.Errorf("expected the 10 oldest events dropped, first queued is %q", first)
	}
}

func TestSink_EmptyURLIsNoOp(t *testing.T) {
	sink := NewSink("", zerolog.Nop())
	sink.Send(Event{Message: "dropped"})
	sink.mu.Lock()
	n := len(sink.events)
	sink.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no-op sink to drop event, got %d queued", n)
	}
}
