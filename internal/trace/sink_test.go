package trace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/designer-agent/internal/config"
	"github.com/nugget/designer-agent/internal/events"
	"github.com/nugget/designer-agent/internal/usage"
)

type fakeRecorder struct {
	recs []usage.Record
}

func (f *fakeRecorder) Record(_ context.Context, rec usage.Record) error {
	f.recs = append(f.recs, rec)
	return nil
}

func TestUsageSink_RecordsModelSpansOnly(t *testing.T) {
	rec := &fakeRecorder{}
	sink := UsageSink{Store: rec, Provider: func(string) string { return "gemini" }}
	a := New("ABCD-1234", WithSink(sink), WithPricing(testPricing()))

	m := a.StartSpan("agent_iteration_1", KindModel, "")
	a.EndSpan(m, "", WithModel("known-model"), WithTokens(10, 5), WithEstimated())
	tl := a.StartSpan("web_search", KindTool, "")
	a.EndSpan(tl, "results")

	require.Len(t, rec.recs, 1)
	got := rec.recs[0]
	assert.Equal(t, "ABCD-1234", got.SessionID)
	assert.Equal(t, "agent_iteration_1", got.SpanName)
	assert.Equal(t, "gemini", got.Provider)
	assert.True(t, got.Estimated)
	assert.Equal(t, 10, got.InputTokens)
}

func TestBusSink(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(8)
	defer bus.Unsubscribe(ch)

	a := New("ABCD-1234", WithSink(BusSink{Bus: bus}))
	id := a.StartSpan("design", KindModel, "")
	a.EndSpan(id, "", WithModel("m"), WithTokens(3, 4))

	first := <-ch
	second := <-ch
	assert.Equal(t, events.KindSpanStart, first.Kind)
	assert.Equal(t, events.KindSpanEnd, second.Kind)
	assert.Equal(t, "ABCD-1234", second.SessionID)
	assert.Equal(t, 4, second.Data["output_tokens"])
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("down")}
	m := MultiSink{ok, bad}

	err := m.SpanEnded(Span{ID: "s"})
	require.Error(t, err)
	assert.Len(t, ok.ended, 1)
	assert.NoError(t, MultiSink{ok}.TraceStarted(TraceInfo{}))
}

func TestHTTPSink_PostsBatch(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]ingestionEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ingestionPath, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "pk", user)
		assert.Equal(t, "sk", pass)

		var body struct {
			Batch []ingestionEvent `json:"batch"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		batches = append(batches, body.Batch)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.TracingConfig{
		Endpoint:      srv.URL + "/",
		PublicKey:     "pk",
		SecretKey:     "sk",
		FlushInterval: time.Hour,
	}, srv.Client(), nil)

	a := New("ABCD-1234", WithSink(sink), WithPricing(testPricing()))
	a.StartTrace("designer_agent_run", map[string]any{"prompt": "p"})
	id := a.StartSpan("agent_iteration_1", KindModel, "in")
	a.EndSpan(id, "out", WithModel("known-model"), WithTokens(100, 10))
	a.EndTrace(map[string]any{"success": true})

	require.NoError(t, sink.Close(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1, "trace end flushes everything in one batch")
	var types []string
	for _, e := range batches[0] {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"trace-create", "generation-create", "generation-update", "trace-create"}, types)

	update := batches[0][2].Body
	assert.Equal(t, "known-model", update["model"])
	assert.Equal(t, a.TraceID(), update["traceId"])
}

func TestHTTPSink_TraceEndDoesNotWaitOnEndpoint(t *testing.T) {
	release := make(chan struct{})
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()

	sink := NewHTTPSink(config.TracingConfig{Endpoint: srv.URL, FlushInterval: time.Hour}, srv.Client(), nil)

	done := make(chan error, 1)
	go func() { done <- sink.TraceEnded(TraceInfo{ID: "t"}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("TraceEnded blocked on a slow endpoint")
	}

	require.Eventually(t, func() bool { return posts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	unblock()
	require.NoError(t, sink.Close(t.Context()))
	assert.Equal(t, int32(1), posts.Load())
}

func TestHTTPSink_FullBatchWakesLoop(t *testing.T) {
	var events atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Batch []ingestionEvent `json:"batch"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		events.Add(int32(len(body.Batch)))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.TracingConfig{Endpoint: srv.URL, FlushInterval: time.Hour}, srv.Client(), nil)
	defer sink.Close(t.Context())
	sink.maxBatch = 2

	require.NoError(t, sink.SpanStarted(Span{ID: "a", Kind: KindTool}))
	require.NoError(t, sink.SpanStarted(Span{ID: "b", Kind: KindTool}))
	require.Eventually(t, func() bool { return events.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, sink.Pending())
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.TracingConfig{Endpoint: srv.URL, FlushInterval: time.Hour}, srv.Client(), nil)
	defer sink.Close(t.Context())

	require.NoError(t, sink.SpanStarted(Span{ID: "s", Kind: KindTool}))
	assert.Equal(t, 1, sink.Pending())

	err := sink.Flush(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Zero(t, sink.Pending(), "failed batches are dropped")
}
