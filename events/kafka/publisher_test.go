package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/events/kafka"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

type captureWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func decode(t *testing.T, msg kafkago.Message) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	return env
}

func TestPublishesPostingAndVoid(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	p := kafka.NewPublisher(nil, kafka.WithWriter(w), kafka.WithTopic("rentbook.ledger"))

	g := &journal.PostingGroup{ID: id.NewPostingGroupID(), IdempotencyKey: "L1-rent-2025-01"}
	g.Entries = []*journal.Entry{
		{ID: id.NewEntryID(), GroupID: g.ID, AccountCode: "1200", Side: types.Debit, Amount: types.USD(50000)},
		{ID: id.NewEntryID(), GroupID: g.ID, AccountCode: "4000", Side: types.Credit, Amount: types.USD(50000)},
	}
	require.NoError(t, p.OnGroupPosted(ctx, g))
	require.NoError(t, p.OnGroupVoided(ctx, &journal.VoidResult{Voided: g.Entries, Reason: "typo"}))

	require.Len(t, w.msgs, 2)
	for _, msg := range w.msgs {
		assert.Equal(t, "rentbook.ledger", msg.Topic)
		assert.Equal(t, g.ID.String(), string(msg.Key), "post and void share a partition key")
	}

	posted := decode(t, w.msgs[0])
	assert.Equal(t, kafka.EventGroupPosted, posted["type"])
	assert.NotEmpty(t, posted["id"])
	data := posted["data"].(map[string]any)
	assert.Equal(t, "L1-rent-2025-01", data["idempotency_key"])

	voided := decode(t, w.msgs[1])
	assert.Equal(t, kafka.EventGroupVoided, voided["type"])
	assert.Equal(t, kafka.EventGroupVoided, string(w.msgs[1].Headers[0].Value))
}

func TestPublishesRunAndIntegrity(t *testing.T) {
	ctx := context.Background()
	w := &captureWriter{}
	p := kafka.NewPublisher(nil, kafka.WithWriter(w))

	report := recurring.NewRunReport(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), time.Now())
	report.Record(recurring.RunItem{Outcome: recurring.OutcomePosted})
	require.NoError(t, p.OnBillingRunCompleted(ctx, report, time.Second))
	require.NoError(t, p.OnIntegrityChecked(ctx, &journal.IntegrityReport{Balanced: false}))

	require.Len(t, w.msgs, 2)
	run := decode(t, w.msgs[0])
	assert.Equal(t, kafka.DefaultTopic, w.msgs[0].Topic)
	runData := run["data"].(map[string]any)
	assert.Equal(t, "2025-01", runData["period"])
	assert.InDelta(t, 1, runData["posted"], 0)

	assert.Equal(t, kafka.EventIntegrityMismatch, decode(t, w.msgs[1])["type"])
}

func TestWriteFailureIsReturned(t *testing.T) {
	w := &captureWriter{err: errors.New("broker unreachable")}
	p := kafka.NewPublisher(nil, kafka.WithWriter(w))

	err := p.OnIntegrityChecked(context.Background(), &journal.IntegrityReport{Balanced: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")

	require.NoError(t, p.OnShutdown(context.Background()))
	assert.True(t, w.closed)
}
