// Package notify implements C10: a best-effort notification sink.
// Delivery failures are logged and dropped, never propagated to
// business logic — the queue, not the notification stream, is the
// source of truth for what happened (spec §9 "Message-push order").
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// queueCapacity is the bounded buffer size from spec §4.10; overflow
// drops the oldest queued message, grounded on the teacher's
// dashboard.Broadcaster's identically-sized `broadcast` channel
// (internal/dashboard/broadcaster.go), adapted here to drop-oldest
// instead of block-on-full since a notification sink must never
// apply backpressure to business logic.
const queueCapacity = 256

// errorLogInterval bounds how often a delivery failure is logged, so
// a dead webhook endpoint doesn't flood the log.
const errorLogInterval = time.Minute

// Event is one notification payload posted to the configured webhook
// as JSON.
type Event struct {
	Kind      string    `json:"kind"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink buffers events and posts them to a webhook URL on a background
// goroutine. Construct with NewSink and call Run in a goroutine;
// Send never blocks the caller.
type Sink struct {
	url    string
	client *http.Client
	log    zerolog.Logger

	mu      sync.Mutex
	events  []Event
	wake    chan struct{}

	lastErrLog time.Time
}

// NewSink builds a sink posting to url. An empty url makes Send a
// no-op drop (used when no webhook is configured).
func NewSink(url string, log zerolog.Logger) *Sink {
	return &Sink{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With().Str("component", "notify").Logger(),
		wake:   make(chan struct{}, 1),
	}
}

// Send enqueues an event, dropping the oldest queued event if the
// buffer is already at capacity. Never blocks.
func (s *Sink) Send(evt Event) {
	if s.url == "" {
		return
	}
	s.mu.Lock()
	if len(s.events) >= queueCapacity {
		s.events = s.events[1:]
	}
	s.events = append(s.events, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx is cancelled, posting each event
// best-effort. Intended to run in its own goroutine for the process
// lifetime.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Sink) drain(ctx context.Context) {
	for {
		evt, ok := s.pop()
		if !ok {
			return
		}
		if err := s.post(ctx, evt); err != nil {
			s.logErrorRateLimited(err)
		}
	}
}

func (s *Sink) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	evt := s.events[0]
	s.events = s.events[1:]
	return evt, true
}

func (s *Sink) post(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (s *Sink) logErrorRateLimited(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastErrLog) < errorLogInterval {
		return
	}
	s.lastErrLog = now
	s.log.Warn().Err(err).Msg("notification delivery failed")
}
