package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/plugin"
)

type postedCounter struct {
	name  string
	calls atomic.Int32
	err   error
}

func (p *postedCounter) Name() string { return p.name }

func (p *postedCounter) OnGroupPosted(context.Context, *journal.PostingGroup) error {
	p.calls.Add(1)
	return p.err
}

type slowVoider struct{}

func (slowVoider) Name() string { return "slow" }

func (slowVoider) OnGroupVoided(ctx context.Context, _ *journal.VoidResult) error {
	time.Sleep(time.Second)
	return nil
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) OnGroupPosted(context.Context, *journal.PostingGroup) error {
	panic("boom")
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(&postedCounter{name: "a"}))
	assert.Error(t, r.Register(&postedCounter{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("b"))
}

func TestEmitReachesEveryImplementer(t *testing.T) {
	r := plugin.NewRegistry()
	ok := &postedCounter{name: "ok"}
	failing := &postedCounter{name: "failing", err: errors.New("sink down")}
	require.NoError(t, r.Register(ok))
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(panicky{}))

	r.EmitGroupPosted(context.Background(), &journal.PostingGroup{})
	r.EmitGroupPosted(context.Background(), &journal.PostingGroup{})

	assert.Equal(t, int32(2), ok.calls.Load())
	assert.Equal(t, int32(2), failing.calls.Load(), "a failing plugin still receives events")
	assert.Len(t, r.List(), 3)
}

func TestSlowPluginIsCutOff(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slowVoider{}))

	start := time.Now()
	r.EmitGroupVoided(context.Background(), &journal.VoidResult{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
