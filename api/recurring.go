package api

import (
	"net/http"
	"time"

	"github.com/uptrace/bunrouter"

	"github.com/rentbook/ledger"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/recurring"
	"github.com/rentbook/ledger/types"
)

type subjectRequest struct {
	Name              string     `json:"name"`
	ReceivableAccount string     `json:"receivable_account" validate:"required"`
	Status            string     `json:"status" validate:"omitempty,oneof=pending active terminated"`
	StartDate         time.Time  `json:"start_date" validate:"required"`
	EndDate           *time.Time `json:"end_date"`
}

func (s *Server) putSubject(w http.ResponseWriter, req bunrouter.Request) error {
	var body subjectRequest
	if err := s.decode(req, &body); err != nil {
		return err
	}
	subj := &recurring.Subject{
		ID:                req.Param("id"),
		Name:              body.Name,
		ReceivableAccount: body.ReceivableAccount,
		Status:            recurring.SubjectStatus(body.Status),
		StartDate:         body.StartDate,
		EndDate:           body.EndDate,
	}
	if err := s.ledger.UpsertSubject(req.Context(), subj); err != nil {
		return err
	}
	return bunrouter.JSON(w, subj)
}

func (s *Server) getSubject(w http.ResponseWriter, req bunrouter.Request) error {
	subj, err := s.ledger.GetSubject(req.Context(), req.Param("id"))
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, subj)
}

type definitionRequest struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	Description string `json:"description"`
	// Amount is a major-unit decimal string.
	Amount        string `json:"amount" validate:"required"`
	IncomeAccount string `json:"income_account" validate:"required"`
	DueDay        int    `json:"due_day" validate:"required,min=1,max=31"`
	Active        *bool  `json:"active"`
}

func (s *Server) createDefinition(w http.ResponseWriter, req bunrouter.Request) error {
	var body definitionRequest
	if err := s.decode(req, &body); err != nil {
		return err
	}
	amount, err := types.ParseMoney(body.Amount, s.ledger.Currency())
	if err != nil {
		return ledger.ValidationError{Field: "amount", Message: err.Error()}
	}
	d := &recurring.Definition{
		SubjectID:     body.SubjectID,
		Description:   body.Description,
		Amount:        amount,
		IncomeAccount: body.IncomeAccount,
		DueDay:        body.DueDay,
		Active:        body.Active == nil || *body.Active,
	}
	if err := s.ledger.CreateDefinition(req.Context(), d); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return bunrouter.JSON(w, d)
}

func (s *Server) listDefinitions(w http.ResponseWriter, req bunrouter.Request) error {
	q := req.URL.Query()
	opts := recurring.ListOpts{
		SubjectID:  q.Get("subject"),
		ActiveOnly: q.Get("active") == "true",
	}
	defs, err := s.ledger.ListDefinitions(req.Context(), opts)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, bunrouter.H{"definitions": defs})
}

func (s *Server) getDefinition(w http.ResponseWriter, req bunrouter.Request) error {
	defID, err := id.ParseDefinitionID(req.Param("id"))
	if err != nil {
		return ledger.ValidationError{Field: "id", Message: err.Error()}
	}
	d, err := s.ledger.GetDefinition(req.Context(), defID)
	if err != nil {
		return err
	}
	return bunrouter.JSON(w, d)
}
