package attendance

import (
	"errors"
	"time"
)

// Status is the presence outcome stored on a record.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
	Late    Status = "late"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Present || s == Absent || s == Late
}

// Source says how a record was created.
type Source string

const (
	SourceScan   Source = "token-scan"
	SourceManual Source = "manual"
)

// Record is one attendance entry per identity, day and occurrence.
type Record struct {
	ID            string     `json:"id"`
	IdentityRef   string     `json:"identity_ref"`
	Date          time.Time  `json:"date"`
	OccurrenceRef *string    `json:"occurrence_ref,omitempty"`
	CheckInTime   time.Time  `json:"check_in_time"`
	CheckOutTime  *time.Time `json:"check_out_time,omitempty"`
	Status        Status     `json:"status"`
	Source        Source     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Key returns the record's uniqueness key.
func (r Record) Key() Key {
	k := Key{IdentityRef: r.IdentityRef, Date: r.Date}
	if r.OccurrenceRef != nil {
		k.OccurrenceRef = *r.OccurrenceRef
	}
	return k
}

// Key identifies a record. An empty OccurrenceRef stands for a record not tied
// to any occurrence.
type Key struct {
	IdentityRef   string
	Date          time.Time
	OccurrenceRef string
}

// Identity is the authenticated scanner as far as entitlement is concerned.
type Identity struct {
	Ref           string
	DepartmentRef string
	YearLevel     int
}

// ErrRecordExists is returned by ledgers when the key is already taken.
var ErrRecordExists = errors.New("attendance: record exists for identity, day and occurrence")

// Code is a stable, wire-facing scan failure code.
type Code string

const (
	CodeInvalidCode   Code = "INVALID_CODE"
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeNotEntitled   Code = "NOT_ENTITLED"
	CodeDuplicateScan Code = "DUPLICATE_SCAN"
)

// ScanError is a rejected scan.
type ScanError struct {
	Code    Code
	Message string
}

func (e *ScanError) Error() string {
	return string(e.Code) + ": " + e.Message
}

var (
	ErrInvalidCode   = &ScanError{Code: CodeInvalidCode, Message: "no token with this code"}
	ErrTokenExpired  = &ScanError{Code: CodeTokenExpired, Message: "code has expired, request a fresh one"}
	ErrNotEntitled   = &ScanError{Code: CodeNotEntitled, Message: "code belongs to another department or year level"}
	ErrDuplicateScan = &ScanError{Code: CodeDuplicateScan, Message: "scan repeated too soon"}
)

// CodeOf extracts the scan failure code from err, or "" if err is not a ScanError.
func CodeOf(err error) Code {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// StatusFor derives the scan status: present up to start+grace, late after.
// A scan never yields absent.
func StatusFor(start, scannedAt time.Time, grace time.Duration) Status {
	if scannedAt.After(start.Add(grace)) {
		return Late
	}
	return Present
}
