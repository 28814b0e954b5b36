package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"wealthflow/internal/core"
	"wealthflow/internal/services"
)

// Accounts

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var a core.Account
	if err := decodeJSON(w, r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	a.UserID = userID
	created, err := s.ledger.CreateAccount(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.ledger.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var a core.Account
	if err := decodeJSON(w, r, &a); err != nil {
		writeError(w, r, err)
		return
	}
	a.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateAccount(r.Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Display   string          `json:"display"`
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.ledger.GetAccount(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.ledger.ComputeAccountBalance(ctx, a.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		AccountID: a.ID,
		Balance:   balance,
		Currency:  a.Currency,
		Display:   core.FormatAmount(balance, a.Currency),
	})
}

// Categories and merchants

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var c core.Category
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.UserID = userID
	created, err := s.ledger.CreateCategory(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := s.ledger.ListCategories(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateMerchant(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var m core.Merchant
	if err := decodeJSON(w, r, &m); err != nil {
		writeError(w, r, err)
		return
	}
	m.UserID = userID
	created, err := s.ledger.CreateMerchant(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListMerchants(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	merchants, err := s.ledger.ListMerchants(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, merchants)
}

func (s *Server) handleDeleteMerchant(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteMerchant(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transactions

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var t core.Transaction
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.UserID = userID
	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := transactionFilter(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var t core.Transaction
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type deletedResponse struct {
	Deleted []string `json:"deleted"`
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: removed})
}

// Splits

type splitsRequest struct {
	Splits []services.SplitInput `json:"splits"`
}

type validateSplitRequest struct {
	Amount string                `json:"amount"`
	Splits []services.SplitInput `json:"splits"`
}

type splitsResponse struct {
	Transaction core.Transaction `json:"transaction"`
	Splits      []core.Split     `json:"splits"`
}

func (s *Server) handleValidateSplit(w http.ResponseWriter, r *http.Request) {
	var req validateSplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, core.Invalid("amount", err))
		return
	}
	allocations, err := s.ledger.ValidateSplit(amount, req.Splits)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocations": allocations})
}

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parent, err := s.ledger.GetTransaction(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	splits, err := s.ledger.Splits(ctx, parent.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitsResponse{Transaction: parent, Splits: splits})
}

func (s *Server) handleReplaceSplits(w http.ResponseWriter, r *http.Request) {
	var req splitsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	parent, splits, err := s.ledger.ReplaceSplits(r.Context(), r.PathValue("id"), req.Splits)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitsResponse{Transaction: parent, Splits: splits})
}

// handleClearSplits drops every split of a transaction; ?category_id= sets
// the single category it falls back to.
func (s *Server) handleClearSplits(w http.ResponseWriter, r *http.Request) {
	parent, err := s.ledger.ClearSplits(r.Context(), r.PathValue("id"), r.URL.Query().Get("category_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, splitsResponse{Transaction: parent, Splits: []core.Split{}})
}

// Transfers

type transferResponse struct {
	Debit  core.Transaction `json:"debit"`
	Credit core.Transaction `json:"credit"`
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in services.TransferInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.UserID = userID
	debit, credit, err := s.ledger.CreateTransfer(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{Debit: debit, Credit: credit})
}

func (s *Server) handleUpdateTransfer(w http.ResponseWriter, r *http.Request) {
	var in services.TransferInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	debit, credit, err := s.ledger.UpdateTransfer(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{Debit: debit, Credit: credit})
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ledger.DeleteTransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: removed})
}
