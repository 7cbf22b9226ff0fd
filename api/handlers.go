package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bunrouter"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(req bunrouter.Request, dst any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ledger.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ledger.ValidationError{Field: fe.Namespace(), Message: "failed " + fe.Tag()}
		}
		return ledger.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, req bunrouter.Request) error {
	if err := s.ledger.Ping(req.Context()); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrStorageUnavailable, err)
	}
	return bunrouter.JSON(w, bunrouter.H{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Postings
// ──────────────────────────────────────────────────

type entryRequest struct {
	AccountCode string `json:"account_code" validate:"required"`
	Side        string `json:"side" validate:"required"`
	// Amount is a major-unit decimal string such as "500.00".
	Amount        string    `json:"amount" validate:"required"`
	Description   string    `json:"description"`
	EffectiveDate time.Time `json:"effective_date"`
	SubjectID     string    `json:"subject_id"`
}

type postRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Memo           string         `json:"memo"`
	Entries        []entryRequest `json:"entries" validate:"required,min=2,dive"`
}

func (s *Server) post(w http.ResponseWriter, req bunrouter.Request) error {
	var body postRequest
	if err := s.decode(req, &body); err != nil {
		return err
	}

	pr := &ledger.PostRequest{
		IdempotencyKey: body.IdempotencyKey,
		Memo:           body.Memo,
		Entries:        make([]journal.EntrySpec, 0, len(body.Entries)),
	}
	if pr.IdempotencyKey == "" {
		pr.IdempotencyKey = req.Header.Get(HeaderIdempotencyKey)
	}
	for i, e := range body.Entries {
		side, err := types.ParseSide(e.Side)
		if err != nil {
			return ledger.ValidationError{Field: fmt.Sprintf("entries[%d].side", i), Message: err.Error()}
		}
		amount, err := types.ParseMoney(e.Amount, s.ledger.Currency())
		if err != nil {
			return ledger.ValidationError{Field: fmt.Sprintf("entries[%d].amount", i), Message: err.Error()}
		}
		pr.Entries = append(pr.Entries, journal.EntrySpec{
			AccountCode:   e.AccountCode,
			Side:          side,
			Amount:        amount,
			Description:   e.Description,
			EffectiveDate: e.EffectiveDate,
			SubjectID:     e.SubjectID,
		})
	}

	res, err := s.ledger.Post(req.Context(), pr)
	if err != nil {
		return err
	}
	if !res.Replayed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
	}
	return bunrouter.JSON(w, res)
}

func (s *Server) getGroup(w http.ResponseWriter, req bunrouter.Request) error {
	groupID, err := id.ParsePostingGroupID(req.Param("id"))
	if err != nil {
		return ledger.ValidationError{Field: "id", Message: err.Error()}
	}
	g, err := s.ledger.GetGroup(req.Context(), groupID)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, g)
}

func (s *Server) getEntry(w http.ResponseWriter, req bunrouter.Request) error {
	entryID, err := id.ParseEntryID(req.Param("id"))
	if err != nil {
		return ledger.ValidationError{Field: "id", Message: err.Error()}
	}
	e, err := s.ledger.GetEntry(req.Context(), entryID)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, e)
}

func (s *Server) listEntries(w http.ResponseWriter, req bunrouter.Request) error {
	q := req.URL.Query()
	f := journal.Filter{
		AccountCode: q.Get("account"),
		SubjectID:   q.Get("subject"),
		Status:      journal.Status(strings.ToUpper(q.Get("status"))),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return ledger.ValidationError{Field: "limit", Message: err.Error()}
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return ledger.ValidationError{Field: "offset", Message: err.Error()}
	}
	entries, err := s.ledger.ListEntries(req.Context(), f)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"entries": entries})
}

type voidRequest struct {
	Reason      string `json:"reason" validate:"required"`
	AutoReverse bool   `json:"auto_reverse"`
}

func (s *Server) void(w http.ResponseWriter, req bunrouter.Request) error {
	entryID, err := id.ParseEntryID(req.Param("id"))
	if err != nil {
		return ledger.ValidationError{Field: "id", Message: err.Error()}
	}
	var body voidRequest
	if err := s.decode(req, &body); err != nil {
		return err
	}
	res, err := s.ledger.Void(req.Context(), entryID, body.Reason, body.AutoReverse)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, res)
}

// ──────────────────────────────────────────────────
// Accounts and balances
// ──────────────────────────────────────────────────

func (s *Server) listAccounts(w http.ResponseWriter, req bunrouter.Request) error {
	q := req.URL.Query()
	opts := account.ListOpts{ActiveOnly: q.Get("active") == "true"}
	if c := q.Get("category"); c != "" {
		category, err := account.ParseCategory(c)
		if err != nil {
			return ledger.ValidationError{Field: "category", Message: err.Error()}
		}
		opts.Category = category
	}
	accounts, err := s.ledger.ListAccounts(req.Context(), opts)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"accounts": accounts})
}

type balanceResponse struct {
	AccountCode string      `json:"account_code"`
	SubjectID   string      `json:"subject_id,omitempty"`
	Balance     types.Money `json:"balance"`
}

func (s *Server) balance(w http.ResponseWriter, req bunrouter.Request) error {
	code := req.Param("code")
	subjectID := req.URL.Query().Get("subject")
	b, err := s.ledger.Balance(req.Context(), code, subjectID)
	if errors.Is(err, ledger.ErrUnknownAccount) {
		return fmt.Errorf("%w: %w", ledger.ErrAccountNotFound, err)
	}
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, balanceResponse{AccountCode: code, SubjectID: subjectID, Balance: b})
}

func (s *Server) trialBalance(w http.ResponseWriter, req bunrouter.Request) error {
	lines, err := s.ledger.TrialBalance(req.Context())
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"accounts": lines})
}

// ──────────────────────────────────────────────────
// Billing and integrity
// ──────────────────────────────────────────────────

type billingRunRequest struct {
	AsOf time.Time `json:"as_of"`
}

type billingRunResponse struct {
	*recurring.RunReport
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) runBilling(w http.ResponseWriter, req bunrouter.Request) error {
	var body billingRunRequest
	if req.ContentLength != 0 {
		if err := s.decode(req, &body); err != nil {
			return err
		}
	}
	if body.AsOf.IsZero() {
		body.AsOf = time.Now()
	}

	report, err := s.ledger.RunBillingCycle(req.Context(), body.AsOf)
	if err != nil {
		return err
	}
	resp := billingRunResponse{RunReport: report}
	for _, item := range report.Errored {
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %s", item.DefinitionID, item.Reason))
	}
	return bunrouter.JSON(w, resp)
}

func (s *Server) integrity(w http.ResponseWriter, req bunrouter.Request) error {
	report, err := s.ledger.CheckIntegrity(req.Context())
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, report)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer, got %q", v)
	}
	return n, nil
}
