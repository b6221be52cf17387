// Package payment manages payment records whose status and remaining amount
// are always derived, never supplied by callers.
package payment

import (
	"errors"
	"time"

	"campusops/internal/derive"
)

// Payment is a stored payment record. Amounts are minor currency units.
type Payment struct {
	ID              string               `json:"id"`
	IdentityRef     string               `json:"identity_ref"`
	Amount          int64                `json:"amount"`
	PaidAmount      int64                `json:"paid_amount"`
	RemainingAmount int64                `json:"remaining_amount"`
	DueDate         time.Time            `json:"due_date"`
	Status          derive.PaymentStatus `json:"status"`
	Note            string               `json:"note,omitempty"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// NewPayment is the input for Create.
type NewPayment struct {
	IdentityRef string    `json:"identity_ref"`
	Amount      int64     `json:"amount"`
	PaidAmount  int64     `json:"paid_amount"`
	DueDate     time.Time `json:"due_date"`
	Note        string    `json:"note"`
}

// Patch updates a subset of the caller-owned fields.
type Patch struct {
	Amount     *int64     `json:"amount"`
	PaidAmount *int64     `json:"paid_amount"`
	DueDate    *time.Time `json:"due_date"`
	Note       *string    `json:"note"`
}

var (
	ErrInvalid     = errors.New("payment: invalid input")
	ErrOverpayment = errors.New("payment: paid amount exceeds amount")
)

// validate rejects what derivation would treat as a programming error, plus
// overpayment, before anything reaches it.
func (p Payment) validate() error {
	switch {
	case p.IdentityRef == "":
		return errors.Join(ErrInvalid, errors.New("identity_ref required"))
	case p.Amount < 0 || p.PaidAmount < 0:
		return errors.Join(ErrInvalid, errors.New("amounts must not be negative"))
	case p.DueDate.IsZero():
		return errors.Join(ErrInvalid, errors.New("due_date required"))
	case p.PaidAmount > p.Amount:
		return ErrOverpayment
	}
	return nil
}

// derived returns p with remaining amount and status recomputed for now.
func (p Payment) derived(now time.Time) Payment {
	d := derive.DerivePayment(p.Amount, p.PaidAmount, p.DueDate, now)
	p.RemainingAmount = d.Remaining
	p.Status = d.Status
	return p
}
