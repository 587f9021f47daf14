package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nugget/designer-agent/internal/config"
	"github.com/nugget/designer-agent/internal/httpkit"
)

const (
	ingestionPath   = "/api/public/ingestion"
	defaultMaxBatch = 50
)

// ingestionEvent is one element of a Langfuse-compatible ingestion batch.
type ingestionEvent struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Body      map[string]any `json:"body"`
}

// HTTPSink batches trace, span and event notifications and posts them
// to a Langfuse-compatible ingestion endpoint with basic auth. Batches
// are flushed every interval and on Close. A full batch or a trace end
// wakes the flush loop; the caller never waits on the endpoint.
type HTTPSink struct {
	url       string
	publicKey string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
	maxBatch  int

	mu    sync.Mutex
	batch []ingestionEvent

	flushCh chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewHTTPSink creates a sink from tracing configuration and starts its
// flush loop. Call Close to flush and stop it.
func NewHTTPSink(cfg config.TracingConfig, client *http.Client, logger *slog.Logger) *HTTPSink {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = httpkit.NewClient(httpkit.WithTimeout(15*time.Second), httpkit.WithRetry(2, time.Second))
	}
	s := &HTTPSink{
		url:       strings.TrimRight(cfg.Endpoint, "/") + ingestionPath,
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
		client:    client,
		logger:    logger.With("component", "trace_sink"),
		maxBatch:  defaultMaxBatch,
		flushCh:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.wg.Add(1)
	go s.loop(interval)
	return s
}

func (s *HTTPSink) loop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("periodic flush failed", "error", err)
			}
		case <-s.flushCh:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("flush failed", "error", err)
			}
		case <-s.stop:
			return
		}
	}
}

// TraceStarted enqueues a trace-create event.
func (s *HTTPSink) TraceStarted(t TraceInfo) error {
	return s.enqueue("trace-create", t.Started, map[string]any{
		"id":        t.ID,
		"name":      t.Name,
		"sessionId": t.SessionID,
		"input":     t.Input,
		"timestamp": formatTime(t.Started),
		"metadata":  map[string]any{"agent_type": "designer"},
	}, false)
}

// SpanStarted enqueues a span-create or generation-create event.
func (s *HTTPSink) SpanStarted(sp Span) error {
	return s.enqueue(createType(sp.Kind), sp.Started, map[string]any{
		"id":        sp.ID,
		"traceId":   sp.TraceID,
		"name":      sp.Name,
		"input":     sp.Input,
		"startTime": formatTime(sp.Started),
	}, false)
}

// SpanEnded enqueues the matching update event. Model spans carry
// usage and cost.
func (s *HTTPSink) SpanEnded(sp Span) error {
	body := map[string]any{
		"id":      sp.ID,
		"traceId": sp.TraceID,
		"output":  sp.Output,
		"endTime": formatTime(sp.Ended),
	}
	typ := "span-update"
	if sp.Kind == KindModel {
		typ = "generation-update"
		body["model"] = sp.Model
		body["usage"] = map[string]any{
			"input":  sp.InputTokens,
			"output": sp.OutputTokens,
			"total":  sp.InputTokens + sp.OutputTokens,
			"unit":   "TOKENS",
		}
		body["costDetails"] = map[string]any{"total": sp.CostUSD}
	}
	return s.enqueue(typ, sp.Ended, body, false)
}

// EventLogged enqueues an event-create event.
func (s *HTTPSink) EventLogged(traceID, sessionID string, e Entry) error {
	return s.enqueue("event-create", e.Timestamp, map[string]any{
		"id":        newID(),
		"traceId":   traceID,
		"name":      e.Name,
		"input":     e.Data,
		"startTime": formatTime(e.Timestamp),
	}, false)
}

// TraceEnded upserts the trace with its output and totals and asks the
// flush loop to send it.
func (s *HTTPSink) TraceEnded(t TraceInfo) error {
	return s.enqueue("trace-create", t.Ended, map[string]any{
		"id":        t.ID,
		"sessionId": t.SessionID,
		"output":    t.Output,
		"metadata": map[string]any{
			"total_tokens":        t.Summary.TotalTokens,
			"total_input_tokens":  t.Summary.TotalInputTokens,
			"total_output_tokens": t.Summary.TotalOutputTokens,
			"total_cost_usd":      t.Summary.TotalCostUSD,
			"events_count":        t.Summary.EventsCount,
		},
	}, true)
}

func (s *HTTPSink) enqueue(typ string, ts time.Time, body map[string]any, flush bool) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	s.mu.Lock()
	s.batch = append(s.batch, ingestionEvent{
		ID:        newID(),
		Timestamp: formatTime(ts),
		Type:      typ,
		Body:      body,
	})
	full := len(s.batch) >= s.maxBatch
	s.mu.Unlock()

	if flush || full {
		select {
		case s.flushCh <- struct{}{}:
		default: // a flush is already pending
		}
	}
	return nil
}

// Pending returns the number of queued events.
func (s *HTTPSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

// Flush posts all queued events. On failure the events are dropped and
// the error returned; tracing never retries into an unbounded backlog.
func (s *HTTPSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	data, err := json.Marshal(map[string]any{"batch": batch})
	if err != nil {
		return fmt.Errorf("marshal ingestion batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.publicKey, s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ingestion batch: %w", err)
	}
	defer resp.Body.Close()

	// 207 is returned when some events in the batch were rejected.
	if resp.StatusCode >= 300 {
		body := httpkit.ReadErrorBody(resp.Body, 2048)
		return fmt.Errorf("ingestion endpoint returned %d: %s", resp.StatusCode, body)
	}
	if resp.StatusCode == http.StatusMultiStatus {
		s.logger.Warn("ingestion partially rejected", "events", len(batch), "body", httpkit.ReadErrorBody(resp.Body, 2048))
		return nil
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	s.logger.Debug("ingestion batch sent", "events", len(batch))
	return nil
}

// Close stops the flush loop and sends anything still queued.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.Flush(ctx)
}

func createType(k Kind) string {
	if k == KindModel {
		return "generation-create"
	}
	return "span-create"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
