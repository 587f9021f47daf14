package runlog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugget/designer-agent/internal/agent"
	"github.com/nugget/designer-agent/internal/slide"
	"github.com/nugget/designer-agent/internal/trace"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func sampleResult(id string, started time.Time) *agent.Result {
	return &agent.Result{
		SessionID:   id,
		Success:     true,
		FinalAnswer: "Done",
		Iterations:  3,
		Model:       "gemini-2.0-flash",
		Trace:       trace.Summary{TotalInputTokens: 120, TotalOutputTokens: 30, TotalCostUSD: 0.000024},
		Rendered:    &slide.Rendered{Path: "/out/" + id + "/slide.json"},
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		ToolInvocations: []agent.ToolInvocation{
			{Action: "design", Input: map[string]any{"reasoning": "r"}, Observation: "Design JSON generated."},
			{Action: "generate", Input: map[string]any{}, Observation: "Slide generated."},
		},
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "make a slide", sampleResult("AB12-0001", started)))

	r, err := s.Get(ctx, "AB12-0001")
	require.NoError(t, err)
	assert.Equal(t, "make a slide", r.Prompt)
	assert.True(t, r.Success)
	assert.Equal(t, 3, r.Iterations)
	assert.Equal(t, 120, r.InputTokens)
	assert.InDelta(t, 0.000024, r.CostUSD, 1e-9)
	assert.Equal(t, "/out/AB12-0001/slide.json", r.OutputPath)
	assert.True(t, started.Equal(r.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, r.Duration)

	require.Len(t, r.Invocations, 2)
	assert.Equal(t, "design", r.Invocations[0].Action)
	assert.Equal(t, "r", r.Invocations[0].Input["reasoning"])
	assert.Equal(t, "generate", r.Invocations[1].Action)
}

func TestStore_RecordReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	res := sampleResult("AB12-0001", time.Now())
	require.NoError(t, s.Record(ctx, "first", res))

	res.ToolInvocations = res.ToolInvocations[:1]
	res.Success = false
	res.Error = agent.ErrMaxIterations
	require.NoError(t, s.Record(ctx, "second", res))

	r, err := s.Get(ctx, "AB12-0001")
	require.NoError(t, err)
	assert.Equal(t, "second", r.Prompt)
	assert.False(t, r.Success)
	assert.Equal(t, agent.ErrMaxIterations, r.Error)
	assert.Len(t, r.Invocations, 1)
}

func TestStore_GetNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "ZZ99-9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"AA00-0001", "AA00-0002", "AA00-0003"} {
		require.NoError(t, s.Record(ctx, "p", sampleResult(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "AA00-0003", runs[0].SessionID)
	assert.Equal(t, "AA00-0002", runs[1].SessionID)
	assert.Empty(t, runs[0].Invocations)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), "p", sampleResult("AB12-0001", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(context.Background(), "AB12-0001")
	assert.NoError(t, err)
}
