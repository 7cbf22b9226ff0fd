package mongo

import (
	"time"

	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

// ==================== Account models ====================

type accountModel struct {
	Code          string    `bson:"_id"`
	Name          string    `bson:"name"`
	Description   string    `bson:"description"`
	Category      string    `bson:"category"`
	NormalBalance string    `bson:"normal_balance"`
	Active        bool      `bson:"active"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		Code:          a.Code,
		Name:          a.Name,
		Description:   a.Description,
		Category:      string(a.Category),
		NormalBalance: string(a.NormalBalance),
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Code:          m.Code,
		Name:          m.Name,
		Description:   m.Description,
		Category:      account.Category(m.Category),
		NormalBalance: types.Side(m.NormalBalance),
		Active:        m.Active,
	}
}

// ==================== Journal models ====================

// groupModel leaves idempotency_key out when empty so the sparse unique
// index ignores keyless groups.
type groupModel struct {
	ID             string    `bson:"_id"`
	IdempotencyKey string    `bson:"idempotency_key,omitempty"`
	Memo           string    `bson:"memo"`
	Actor          string    `bson:"actor"`
	ReversalOf     string    `bson:"reversal_of,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

type entryModel struct {
	ID             string     `bson:"_id"`
	GroupID        string     `bson:"group_id"`
	Line           int        `bson:"line"`
	AccountCode    string     `bson:"account_code"`
	Side           string     `bson:"side"`
	Amount         int64      `bson:"amount"`
	Currency       string     `bson:"currency"`
	Description    string     `bson:"description"`
	EffectiveDate  time.Time  `bson:"effective_date"`
	SubjectID      string     `bson:"subject_id"`
	Status         string     `bson:"status"`
	Actor          string     `bson:"actor"`
	IdempotencyKey string     `bson:"idempotency_key"`
	VoidOfEntryID  string     `bson:"void_of_entry_id,omitempty"`
	VoidReason     string     `bson:"void_reason"`
	VoidedAt       *time.Time `bson:"voided_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
}

func toGroupModel(g *journal.PostingGroup) *groupModel {
	m := &groupModel{
		ID:             g.ID.String(),
		IdempotencyKey: g.IdempotencyKey,
		Memo:           g.Memo,
		Actor:          g.Actor,
		CreatedAt:      g.CreatedAt,
	}
	if !g.ReversalOf.IsNil() {
		m.ReversalOf = g.ReversalOf.String()
	}
	return m
}

func fromGroupModel(m *groupModel, entries []*journal.Entry) (*journal.PostingGroup, error) {
	groupID, err := id.ParsePostingGroupID(m.ID)
	if err != nil {
		return nil, err
	}
	g := &journal.PostingGroup{
		ID:             groupID,
		IdempotencyKey: m.IdempotencyKey,
		Memo:           m.Memo,
		Actor:          m.Actor,
		Entries:        entries,
		CreatedAt:      m.CreatedAt.UTC(),
	}
	if m.ReversalOf != "" {
		if g.ReversalOf, err = id.ParsePostingGroupID(m.ReversalOf); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func toEntryModel(e *journal.Entry) *entryModel {
	m := &entryModel{
		ID:             e.ID.String(),
		GroupID:        e.GroupID.String(),
		Line:           e.Line,
		AccountCode:    e.AccountCode,
		Side:           string(e.Side),
		Amount:         e.Amount.Amount,
		Currency:       e.Amount.Currency,
		Description:    e.Description,
		EffectiveDate:  e.EffectiveDate,
		SubjectID:      e.SubjectID,
		Status:         string(e.Status),
		Actor:          e.Actor,
		IdempotencyKey: e.IdempotencyKey,
		VoidReason:     e.VoidReason,
		VoidedAt:       e.VoidedAt,
		CreatedAt:      e.CreatedAt,
	}
	if !e.VoidOfEntryID.IsNil() {
		m.VoidOfEntryID = e.VoidOfEntryID.String()
	}
	return m
}

func fromEntryModel(m *entryModel) (*journal.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	groupID, err := id.ParsePostingGroupID(m.GroupID)
	if err != nil {
		return nil, err
	}
	e := &journal.Entry{
		ID:             entryID,
		GroupID:        groupID,
		Line:           m.Line,
		AccountCode:    m.AccountCode,
		Side:           types.Side(m.Side),
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
		Description:    m.Description,
		EffectiveDate:  m.EffectiveDate.UTC(),
		SubjectID:      m.SubjectID,
		Status:         journal.Status(m.Status),
		Actor:          m.Actor,
		IdempotencyKey: m.IdempotencyKey,
		VoidReason:     m.VoidReason,
		CreatedAt:      m.CreatedAt.UTC(),
	}
	if m.VoidOfEntryID != "" {
		if e.VoidOfEntryID, err = id.ParseEntryID(m.VoidOfEntryID); err != nil {
			return nil, err
		}
	}
	if m.VoidedAt != nil {
		at := m.VoidedAt.UTC()
		e.VoidedAt = &at
	}
	return e, nil
}

// ==================== Recurring models ====================

type definitionModel struct {
	ID                string    `bson:"_id"`
	SubjectID         string    `bson:"subject_id"`
	Description       string    `bson:"description"`
	Amount            int64     `bson:"amount"`
	Currency          string    `bson:"currency"`
	IncomeAccount     string    `bson:"income_account"`
	DueDay            int       `bson:"due_day"`
	Active            bool      `bson:"active"`
	LastChargedPeriod string    `bson:"last_charged_period"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toDefinitionModel(d *recurring.Definition) *definitionModel {
	return &definitionModel{
		ID:                d.ID.String(),
		SubjectID:         d.SubjectID,
		Description:       d.Description,
		Amount:            d.Amount.Amount,
		Currency:          d.Amount.Currency,
		IncomeAccount:     d.IncomeAccount,
		DueDay:            d.DueDay,
		Active:            d.Active,
		LastChargedPeriod: string(d.LastChargedPeriod),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func fromDefinitionModel(m *definitionModel) (*recurring.Definition, error) {
	defID, err := id.ParseDefinitionID(m.ID)
	if err != nil {
		return nil, err
	}
	return &recurring.Definition{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                defID,
		SubjectID:         m.SubjectID,
		Description:       m.Description,
		Amount:            types.Money{Amount: m.Amount, Currency: m.Currency},
		IncomeAccount:     m.IncomeAccount,
		DueDay:            m.DueDay,
		Active:            m.Active,
		LastChargedPeriod: recurring.Period(m.LastChargedPeriod),
	}, nil
}

type subjectModel struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	ReceivableAccount string     `bson:"receivable_account"`
	Status            string     `bson:"status"`
	StartDate         time.Time  `bson:"start_date"`
	EndDate           *time.Time `bson:"end_date,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func fromSubjectModel(m *subjectModel) *recurring.Subject {
	sub := &recurring.Subject{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                m.ID,
		Name:              m.Name,
		ReceivableAccount: m.ReceivableAccount,
		Status:            recurring.SubjectStatus(m.Status),
		StartDate:         m.StartDate.UTC(),
	}
	if m.EndDate != nil {
		end := m.EndDate.UTC()
		sub.EndDate = &end
	}
	return sub
}
