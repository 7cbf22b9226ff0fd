package storetest

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/store"
	"github.com/rentbook/ledger/types"
)

// seqStep is one operation of a scripted ledger history. Exactly one of
// post, void or voidReversalOf is set.
type seqStep struct {
	name string

	post *seqPost

	void    string
	reverse bool

	voidReversalOf string

	wantErr error
}

type seqPost struct {
	key           string
	debit, credit string
	amount        int64
	subjectID     string
}

// seqGroup is the expected state of one posting group, keyed by its
// idempotency key.
type seqGroup struct {
	seqPost
	groupID       id.PostingGroupID
	entryID       id.EntryID
	reversalEntry id.EntryID
	voided        bool
}

type seqModel map[string]*seqGroup

// balance mirrors Ledger.Balance for the seeded chart: 1000 and 1200 are
// debit-normal, 4000 is credit-normal.
func (m seqModel) balance(code, subjectID string) int64 {
	var debits, credits int64
	for _, g := range m {
		if g.voided || (subjectID != "" && g.subjectID != subjectID) {
			continue
		}
		if g.debit == code {
			debits += g.amount
		}
		if g.credit == code {
			credits += g.amount
		}
	}
	if code == "4000" {
		return credits - debits
	}
	return debits - credits
}

func (m seqModel) liveEntries() int64 {
	var n int64
	for _, g := range m {
		if !g.voided {
			n += 2
		}
	}
	return n
}

func rent(key string, amount int64, subjectID string) *seqPost {
	return &seqPost{key: key, debit: "1200", credit: "4000", amount: amount, subjectID: subjectID}
}

func payment(key string, amount int64, subjectID string) *seqPost {
	return &seqPost{key: key, debit: "1000", credit: "1200", amount: amount, subjectID: subjectID}
}

// testLedgerSequence drives the engine through posts, replays and voids and
// checks after every step that the journal balances and that each account
// balance matches the surviving groups.
func testLedgerSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedAccounts(t, s)
	l := ledger.New(s, ledger.WithLogger(slog.New(slog.DiscardHandler)))

	steps := []seqStep{
		{name: "rent L1", post: rent("rent-L1", 50000, "L1")},
		{name: "rent L2", post: rent("rent-L2", 45000, "L2")},
		{name: "replay rent L1 with another amount", post: rent("rent-L1", 99999, "L1")},
		{name: "payment L1", post: payment("pay-L1", 50000, "L1")},
		{name: "void rent L2", void: "rent-L2"},
		{name: "void rent L2 again", void: "rent-L2", wantErr: ledger.ErrAlreadyVoided},
		{name: "corrected rent L2", post: rent("rent-L2-fix", 47500, "L2")},
		{name: "void payment L1 with reversal", void: "pay-L1", reverse: true},
		{name: "void the reversal leg", voidReversalOf: "pay-L1", wantErr: ledger.ErrAlreadyVoided},
		{name: "void payment L1 again", void: "pay-L1", reverse: true, wantErr: ledger.ErrAlreadyVoided},
		{name: "replay voided payment", post: payment("pay-L1", 50000, "L1")},
		{name: "payment L1 retried", post: payment("pay-L1-retry", 50000, "L1")},
		{name: "partial payment L2", post: payment("pay-L2", 20000, "L2")},
		{name: "void rent L1 with reversal", void: "rent-L1", reverse: true},
		{name: "replay voided rent L2", post: rent("rent-L2", 45000, "L2")},
		{name: "void partial payment L2", void: "pay-L2"},
	}

	model := seqModel{}
	for i, st := range steps {
		switch {
		case st.post != nil:
			p := st.post
			res, err := l.Post(ctx, &ledger.PostRequest{
				IdempotencyKey: p.key,
				Entries: []journal.EntrySpec{
					{AccountCode: p.debit, Side: types.Debit, Amount: types.USD(p.amount), SubjectID: p.subjectID},
					{AccountCode: p.credit, Side: types.Credit, Amount: types.USD(p.amount), SubjectID: p.subjectID},
				},
			})
			require.NoError(t, err, "step %d %s", i, st.name)

			if prev, ok := model[p.key]; ok {
				assert.True(t, res.Replayed, "step %d %s", i, st.name)
				assert.Equal(t, prev.groupID.String(), res.Group.ID.String(), "step %d %s", i, st.name)
				break
			}
			assert.False(t, res.Replayed, "step %d %s", i, st.name)
			model[p.key] = &seqGroup{
				seqPost: *p,
				groupID: res.Group.ID,
				entryID: res.Group.Entries[len(res.Group.Entries)-1].ID,
			}

		case st.void != "":
			g := model[st.void]
			require.NotNil(t, g, "step %d %s", i, st.name)
			res, err := l.Void(ctx, g.entryID, st.name, st.reverse)
			if st.wantErr != nil {
				require.ErrorIs(t, err, st.wantErr, "step %d %s", i, st.name)
				break
			}
			require.NoError(t, err, "step %d %s", i, st.name)
			assert.Len(t, res.Voided, 2, "step %d %s", i, st.name)
			g.voided = true
			if st.reverse {
				require.NotNil(t, res.Reversal, "step %d %s", i, st.name)
				g.reversalEntry = res.Reversal.Entries[0].ID
			}

		case st.voidReversalOf != "":
			g := model[st.voidReversalOf]
			require.NotNil(t, g, "step %d %s", i, st.name)
			require.False(t, g.reversalEntry.IsNil(), "step %d %s", i, st.name)
			_, err := l.Void(ctx, g.reversalEntry, st.name, false)
			require.ErrorIs(t, err, st.wantErr, "step %d %s", i, st.name)
		}

		report, err := l.CheckIntegrity(ctx)
		require.NoError(t, err, "step %d %s", i, st.name)
		assert.True(t, report.Balanced, "step %d %s: integrity", i, st.name)
		assert.Equal(t, model.liveEntries(), report.EntryCount, "step %d %s: entry count", i, st.name)

		for _, code := range []string{"1000", "1200", "4000"} {
			for _, subj := range []string{"", "L1", "L2"} {
				got, err := l.Balance(ctx, code, subj)
				require.NoError(t, err, "step %d %s", i, st.name)
				assert.Equal(t, model.balance(code, subj), got.Amount,
					"step %d %s: balance %s subject %q", i, st.name, code, subj)
			}
		}
	}

	// The corrected L2 rent and the retried L1 payment survive.
	for code, want := range map[string]int64{"1000": 50000, "1200": -2500, "4000": 47500} {
		got, err := l.Balance(ctx, code, "")
		require.NoError(t, err)
		assert.Equal(t, want, got.Amount, "final balance %s", code)
	}
}
