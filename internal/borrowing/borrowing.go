// Package borrowing tracks library loans. Status is derived from the dates on
// every write.
package borrowing

import (
	"errors"
	"time"

	"campusops/internal/derive"
)

// Borrowing is a stored loan.
type Borrowing struct {
	ID          string                 `json:"id"`
	IdentityRef string                 `json:"identity_ref"`
	ItemRef     string                 `json:"item_ref"`
	BorrowDate  time.Time              `json:"borrow_date"`
	DueDate     time.Time              `json:"due_date"`
	ReturnDate  *time.Time             `json:"return_date,omitempty"`
	Status      derive.BorrowingStatus `json:"status"`
	Note        string                 `json:"note,omitempty"`
	Version     int                    `json:"version"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NewBorrowing is the input for Create. A zero BorrowDate means now.
type NewBorrowing struct {
	IdentityRef string    `json:"identity_ref"`
	ItemRef     string    `json:"item_ref"`
	BorrowDate  time.Time `json:"borrow_date"`
	DueDate     time.Time `json:"due_date"`
	Note        string    `json:"note"`
}

// Patch updates a subset of the caller-owned fields.
type Patch struct {
	DueDate    *time.Time `json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
	Note       *string    `json:"note"`
}

var (
	ErrInvalid         = errors.New("borrowing: invalid input")
	ErrAlreadyReturned = errors.New("borrowing: already returned")
)

func (b Borrowing) validate() error {
	switch {
	case b.IdentityRef == "" || b.ItemRef == "":
		return errors.Join(ErrInvalid, errors.New("identity_ref and item_ref required"))
	case b.BorrowDate.IsZero() || b.DueDate.IsZero():
		return errors.Join(ErrInvalid, errors.New("borrow_date and due_date required"))
	case b.DueDate.Before(b.BorrowDate):
		return errors.Join(ErrInvalid, errors.New("due_date before borrow_date"))
	case b.ReturnDate != nil && b.ReturnDate.IsZero():
		return errors.Join(ErrInvalid, errors.New("return_date must be a real date"))
	case b.ReturnDate != nil && b.ReturnDate.Before(b.BorrowDate):
		return errors.Join(ErrInvalid, errors.New("return_date before borrow_date"))
	}
	return nil
}

func (b Borrowing) derived(now time.Time) Borrowing {
	b.Status = derive.DeriveBorrowing(b.BorrowDate, b.DueDate, b.ReturnDate, now)
	return b
}
