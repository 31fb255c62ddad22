package ledger

import (
	"errors"
	"fmt"
)

// ErrInvalidAmount is returned when a transaction carries a non-positive
// amount. Unlike insufficient funds, it is not worth retrying.
var ErrInvalidAmount = errors.New("invalid amount")

// InsufficientFundsError is returned by Apply when the sender cannot cover the
// amount. It is a temporary condition: the transaction should be requeued and
// retried in a later block.
type InsufficientFundsError struct {
	Tx      Transaction
	Balance int64
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %d has %d, needs %d",
		e.Tx.SenderID, e.Balance, e.Tx.Amount)
}

// IsInsufficientFunds checks whether err is, or wraps, an
// InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var e InsufficientFundsError
	return errors.As(err, &e)
}
