package core

import "github.com/google/uuid"

// NewID returns a fresh entity id. Ids are assigned before insert so rows
// written in the same unit can reference each other.
func NewID() string {
	return uuid.NewString()
}

// TransferLegs builds the two linked legs of a transfer. base carries the
// user, AccountID (source), ToAccountID (destination), amount, date and text
// fields; the debit leg sits on the source account and the credit leg on the
// destination, each pointing at the other.
func TransferLegs(debitID, creditID string, base Transaction) (debit, credit Transaction) {
	base.Type = Transfer
	base.Amount = base.Amount.Abs()

	debit = base
	debit.ID = debitID
	debit.Direction = Outgoing
	debit.LinkedTransactionID = creditID

	credit = base
	credit.ID = creditID
	credit.AccountID, credit.ToAccountID = base.ToAccountID, base.AccountID
	credit.Direction = Incoming
	credit.LinkedTransactionID = debitID
	return debit, credit
}

// CheckTransferPair verifies that debit and credit mirror each other.
func CheckTransferPair(debit, credit Transaction) error {
	switch {
	case !debit.IsTransfer() || !credit.IsTransfer():
		return Inconsistent(InvariantTransferPair, "both legs must be transfers")
	case debit.Direction != Outgoing || credit.Direction != Incoming:
		return Inconsistent(InvariantTransferPair, "legs %s and %s have the wrong direction", debit.ID, credit.ID)
	case debit.LinkedTransactionID != credit.ID || credit.LinkedTransactionID != debit.ID:
		return Inconsistent(InvariantTransferPair, "legs %s and %s do not point at each other", debit.ID, credit.ID)
	case debit.AccountID != credit.ToAccountID || debit.ToAccountID != credit.AccountID:
		return Inconsistent(InvariantTransferPair, "legs %s and %s disagree on accounts", debit.ID, credit.ID)
	case !debit.Amount.Equal(credit.Amount):
		return Inconsistent(InvariantTransferPair, "legs %s and %s disagree on amount", debit.ID, credit.ID)
	case !debit.Date.Equal(credit.Date.Time):
		return Inconsistent(InvariantTransferPair, "legs %s and %s disagree on date", debit.ID, credit.ID)
	}
	return nil
}
