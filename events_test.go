package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
	inited any
}

func (*eventLog) Name() string { return "event-log" }

func (p *eventLog) add(event string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *eventLog) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *eventLog) OnInit(_ context.Context, l any) error {
	p.inited = l
	return p.add("init")
}

func (p *eventLog) OnAccountCreated(_ context.Context, a *account.Account) error {
	return p.add("account:" + a.Code)
}

func (p *eventLog) OnGroupPosted(context.Context, *journal.PostingGroup) error {
	return p.add("posted")
}

func (p *eventLog) OnPostingReplayed(context.Context, *journal.PostingGroup) error {
	return p.add("replayed")
}

func (p *eventLog) OnPostingRejected(_ context.Context, key string, _ error) error {
	return p.add("rejected:" + key)
}

func (p *eventLog) OnGroupVoided(context.Context, *journal.VoidResult) error {
	return p.add("voided")
}

func (p *eventLog) OnBillingRunCompleted(context.Context, *recurring.RunReport, time.Duration) error {
	return p.add("billing")
}

func (p *eventLog) OnIntegrityChecked(context.Context, *journal.IntegrityReport) error {
	return p.add("integrity")
}

func TestPluginEvents(t *testing.T) {
	ctx := context.Background()
	events := &eventLog{}
	l := newLedger(t, ledger.WithPlugin(events))

	res, err := l.Post(ctx, rentPosting("k1", 100))
	require.NoError(t, err)
	_, err = l.Post(ctx, rentPosting("k1", 100))
	require.NoError(t, err)
	_, err = l.Post(ctx, rentPosting("k2", 0))
	require.Error(t, err)
	_, err = l.Void(ctx, res.Group.Entries[0].ID, "typo", false)
	require.NoError(t, err)
	_, err = l.RunBillingCycle(ctx, januaryRun)
	require.NoError(t, err)
	_, err = l.CheckIntegrity(ctx)
	require.NoError(t, err)

	got := events.snapshot()
	require.NotEmpty(t, got)
	assert.Equal(t, "init", got[0])
	assert.Same(t, l, events.inited)
	assert.Equal(t, []string{
		"account:1000", "account:1200", "account:2100", "account:4000", "account:4100",
		"posted", "replayed", "rejected:k2", "voided", "billing", "integrity",
	}, got[1:])
}
