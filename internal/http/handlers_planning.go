package http

import (
	"net/http"

	"wealthflow/internal/amqp"
	"wealthflow/internal/core"
	"wealthflow/internal/log"
)

// Recurring rules

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var rule core.RecurringRule
	if err := decodeJSON(w, r, &rule); err != nil {
		writeError(w, r, err)
		return
	}
	rule.UserID = userID
	created, err := s.ledger.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rules, err := s.ledger.ListRules(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.ledger.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule core.RecurringRule
	if err := decodeJSON(w, r, &rule); err != nil {
		writeError(w, r, err)
		return
	}
	rule.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRule removes the rule; transactions it generated stay.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := s.ledger.SetRuleActive(r.Context(), r.PathValue("id"), active)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

type generateResponse struct {
	AsOf    core.Date `json:"as_of"`
	Queued  bool      `json:"queued"`
	Created []string  `json:"created"`
}

// handleGenerateRecurring materializes the caller's due occurrences up to
// ?as_of= (today by default). With ?async=true and a configured run queue the
// request is handed to the recurring worker and answered with 202.
func (s *Server) handleGenerateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	asOf, err := dateParam(r, "as_of", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if boolParam(r, "async") && s.runs != nil {
		req := amqp.NewRecurringRunRequest(userID, asOf.String())
		if err := s.runs.PublishRecurringRun(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring run queued",
			log.NewFields().WithUserID(userID).WithOperation(log.OpGenerate).ToSlice()...)
		writeJSON(w, http.StatusAccepted, generateResponse{AsOf: asOf, Queued: true, Created: []string{}})
		return
	}

	created, err := s.ledger.GenerateDueRecurring(r.Context(), userID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if created == nil {
		created = []string{}
	}
	writeJSON(w, http.StatusOK, generateResponse{AsOf: asOf, Created: created})
}

// Budgets

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var b core.Budget
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, err)
		return
	}
	b.UserID = userID
	created, err := s.ledger.CreateBudget(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	budgets, err := s.ledger.ListBudgets(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var b core.Budget
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, err)
		return
	}
	b.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateBudget(r.Context(), b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBudget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.ledger.ComputeBudgetStatus(r.Context(), r.PathValue("id"), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleBudgetReport(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	asOf, err := dateParam(r, "as_of", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.ledger.BudgetReport(r.Context(), userID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Goals, items and quotes

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var g core.Goal
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, r, err)
		return
	}
	g.UserID = userID
	created, err := s.ledger.CreateGoal(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	goals, err := s.ledger.ListGoals(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var g core.Goal
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, r, err)
		return
	}
	g.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateGoal(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteGoal(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.ledger.ComputeGoalProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCreateGoalItem(w http.ResponseWriter, r *http.Request) {
	var item core.GoalItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	item.GoalID = r.PathValue("id")
	created, err := s.ledger.CreateGoalItem(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateGoalItem(w http.ResponseWriter, r *http.Request) {
	var item core.GoalItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	item.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateGoalItem(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGoalItem(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteGoalItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var q core.Quote
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.GoalItemID = r.PathValue("id")
	created, err := s.ledger.CreateQuote(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.ledger.ListQuotes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteQuote(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectQuote marks the quote selected and clears its siblings.
func (s *Server) handleSelectQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.ledger.SelectQuote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeselectQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.ledger.DeselectQuote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
