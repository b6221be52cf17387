// Package derive computes the stored status of payments and borrowings.
//
// The functions are pure and are called by every write path before the row is
// persisted. Inputs are expected to have been validated; malformed values
// panic.
package derive

import (
	"fmt"
	"time"
)

// PaymentStatus is the derived state of a payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// BorrowingStatus is the derived state of a borrowing.
type BorrowingStatus string

const (
	BorrowingActive   BorrowingStatus = "active"
	BorrowingReturned BorrowingStatus = "returned"
	BorrowingOverdue  BorrowingStatus = "overdue"
)

// Payment is the derived part of a payment record.
type Payment struct {
	Remaining int64
	Status    PaymentStatus
}

// DerivePayment returns remaining = amount - paid and the status for now.
// Amounts are minor currency units.
func DerivePayment(amount, paid int64, due, now time.Time) Payment {
	if amount < 0 || paid < 0 {
		panic(fmt.Sprintf("derive: negative payment amounts (amount=%d paid=%d)", amount, paid))
	}
	if due.IsZero() {
		panic("derive: payment without due date")
	}
	d := Payment{Remaining: amount - paid}
	switch {
	case paid >= amount:
		d.Status = PaymentPaid
	case paid == 0 && due.Before(now):
		d.Status = PaymentOverdue
	case paid > 0:
		d.Status = PaymentPartial
	default:
		d.Status = PaymentPending
	}
	return d
}

// DeriveBorrowing returns the status of a borrowing at now. A nil returned
// means the item is still out.
func DeriveBorrowing(borrowed, due time.Time, returned *time.Time, now time.Time) BorrowingStatus {
	if borrowed.IsZero() || due.IsZero() {
		panic("derive: borrowing without borrow or due date")
	}
	if due.Before(borrowed) {
		panic(fmt.Sprintf("derive: due date %s before borrow date %s", due.Format(time.DateOnly), borrowed.Format(time.DateOnly)))
	}
	switch {
	case returned != nil:
		if returned.IsZero() {
			panic("derive: zero return date")
		}
		return BorrowingReturned
	case due.Before(now):
		return BorrowingOverdue
	default:
		return BorrowingActive
	}
}
