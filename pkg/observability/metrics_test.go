package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats wmbridge.Stats

func (s fixedStats) Stats() wmbridge.Stats { return wmbridge.Stats(s) }

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Hooks(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithNamespace("test"))
	require.NoError(t, m.Register(reg, fixedStats{Cycle: 12, Pending: 2, Dropped: 3}))

	hooks := m.Hooks()
	hooks.OnEntityAdded(ctx, &domain.EntityEvent{Kind: domain.KindObject, Handle: "obj1"})
	hooks.OnEntityAdded(ctx, &domain.EntityEvent{Kind: domain.KindObject, Handle: "obj2"})
	hooks.OnEntityRemoved(ctx, &domain.EntityEvent{Kind: domain.KindObject, Handle: "obj1"})
	hooks.OnCommand(ctx, &domain.CommandEvent{Verb: "drive-forward", State: domain.CommandRunning})
	hooks.OnActionResolved(ctx, &domain.CommandEvent{Verb: "drive-forward", State: domain.CommandComplete, Duration: 2 * time.Second})
	hooks.OnPhase(ctx, &domain.PhaseEvent{Phase: domain.PhaseInput, Duration: time.Millisecond, Writes: domain.WriteStats{Creates: 4, Updates: 1}})

	body := scrape(t, reg)
	assert.Contains(t, body, `test_tracked_entities{kind="object"} 1`)
	assert.Contains(t, body, `test_entity_events_total{event="added",kind="object"} 2`)
	assert.Contains(t, body, `test_commands_total{state="running",verb="drive-forward"} 1`)
	assert.Contains(t, body, `test_commands_total{state="complete",verb="drive-forward"} 1`)
	assert.Contains(t, body, `test_action_duration_seconds_sum{state="complete",verb="drive-forward"} 2`)
	assert.Contains(t, body, `test_wm_writes_total{op="create",phase="input"} 4`)
	assert.Contains(t, body, `test_cycles_total 12`)
	assert.Contains(t, body, `test_pending_actions 2`)
	assert.Contains(t, body, `test_dropped_events_total 3`)
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()
	require.NoError(t, m.Register(reg, nil))
	assert.Error(t, m.Register(reg, nil))
}

func TestChainHooks(t *testing.T) {
	ctx := context.Background()
	var order []string
	a := domain.LifecycleHooks{
		OnPhase: func(context.Context, *domain.PhaseEvent) { order = append(order, "a") },
	}
	b := domain.LifecycleHooks{
		OnPhase:   func(context.Context, *domain.PhaseEvent) { order = append(order, "b") },
		OnCommand: func(context.Context, *domain.CommandEvent) { order = append(order, "b-cmd") },
	}

	h := ChainHooks(a, domain.LifecycleHooks{}, b)
	h.OnPhase(ctx, &domain.PhaseEvent{})
	h.OnCommand(ctx, &domain.CommandEvent{})

	assert.Equal(t, []string{"a", "b", "b-cmd"}, order)
	assert.Nil(t, h.OnEntityAdded)
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogHooks(logger).OnCommand(context.Background(), &domain.CommandEvent{
		Verb:   "move-lift",
		State:  domain.CommandRejected,
		Code:   domain.CodeInvalidParameter,
		Reason: "height 2 out of range [0, 1]",
	})

	assert.Contains(t, buf.String(), `"verb":"move-lift"`)
	assert.Contains(t, buf.String(), `"code":"invalid-parameter"`)
}
