package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/observability"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

func value(t *testing.T, c any) float64 {
	t.Helper()
	metric, ok := c.(prometheus.Metric)
	require.True(t, ok)

	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	switch {
	case out.Counter != nil:
		return out.GetCounter().GetValue()
	case out.Gauge != nil:
		return out.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric %T", c)
	return 0
}

func TestMetricsFromEvents(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	g := &journal.PostingGroup{ID: id.NewPostingGroupID()}
	for _, side := range []types.Side{types.Debit, types.Credit} {
		g.Entries = append(g.Entries, &journal.Entry{Side: side, Amount: types.USD(50000)})
	}
	require.NoError(t, m.OnGroupPosted(ctx, g))
	require.NoError(t, m.OnPostingReplayed(ctx, g))
	require.NoError(t, m.OnGroupVoided(ctx, &journal.VoidResult{Voided: g.Entries, Reversal: g}))

	report := recurring.NewRunReport(time.Now(), time.Now())
	report.Record(recurring.RunItem{Outcome: recurring.OutcomePosted})
	report.Record(recurring.RunItem{Outcome: recurring.OutcomePosted})
	report.Record(recurring.RunItem{Outcome: recurring.OutcomeSkipped})
	require.NoError(t, m.OnBillingRunCompleted(ctx, report, 40*time.Millisecond))

	require.NoError(t, m.OnIntegrityChecked(ctx, &journal.IntegrityReport{Balanced: false, Discrepancy: types.USD(7)}))

	assert.InDelta(t, 1, value(t, m.PostingsCommitted), 0)
	assert.InDelta(t, 1, value(t, m.PostingsReplayed), 0)
	assert.InDelta(t, 4, value(t, m.EntriesWritten), 0, "posted legs plus reversal legs")
	assert.InDelta(t, 1, value(t, m.ReversalsWritten), 0)
	assert.InDelta(t, 2, value(t, m.BillingPosted), 0)
	assert.InDelta(t, 1, value(t, m.BillingSkipped), 0)
	assert.InDelta(t, 0, value(t, m.BillingErrored), 0)
	assert.InDelta(t, 1, value(t, m.IntegrityFailures), 0)
	assert.InDelta(t, 7, value(t, m.IntegrityDiscrepancy), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ledger_posting_committed_total"])
	assert.True(t, names["ledger_billing_run_latency_ms"])
}

func TestFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("ledger.posting.committed")
	b := f.Counter("ledger.posting.committed")
	a.Inc()
	assert.InDelta(t, 1, value(t, b), 0)

	// A second factory on the same registry shares the collector.
	other := observability.NewPrometheusFactory(reg).Counter("ledger.posting.committed")
	other.Inc()
	assert.InDelta(t, 2, value(t, a), 0)
}
