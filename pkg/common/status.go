// Package common holds small types shared across the storage core:
// the status-code vocabulary every page/txn-level operation returns,
// and identifiers (LSN, RowPosition) that have no natural owning package.
package common

import "fmt"

// StatusCode is the result of a page- or transaction-level operation.
// Modeled as a sum type rather than an error hierarchy, following the
// original implementation's status_or.hpp.
type StatusCode uint8

const (
	StatusSuccess StatusCode = iota
	StatusNotExists
	StatusDuplicates
	StatusNoSpace
	StatusTooBigData
	StatusConflicts
	StatusIsInfinity
	StatusUnknown
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotExists:
		return "not_exists"
	case StatusDuplicates:
		return "duplicates"
	case StatusNoSpace:
		return "no_space"
	case StatusTooBigData:
		return "too_big_data"
	case StatusConflicts:
		return "conflicts"
	case StatusIsInfinity:
		return "is_infinity"
	default:
		return "unknown"
	}
}

// Status wraps a StatusCode as an error so callers that want plain Go
// error handling can still do so, while callers that want to branch on
// the kind can type-assert back to *Status.
type Status struct {
	Code StatusCode
	Msg  string
}

func NewStatus(code StatusCode, msg string) *Status {
	if code == StatusSuccess {
		return nil
	}
	return &Status{Code: code, Msg: msg}
}

func (s *Status) Error() string {
	if s.Msg == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

// Ok reports whether err is nil or wraps StatusSuccess.
func Ok(err error) bool {
	if err == nil {
		return true
	}
	if st, ok := err.(*Status); ok {
		return st.Code == StatusSuccess
	}
	return false
}

// CodeOf extracts the StatusCode from err, defaulting to StatusUnknown
// for errors that didn't originate as a *Status.
func CodeOf(err error) StatusCode {
	if err == nil {
		return StatusSuccess
	}
	if st, ok := err.(*Status); ok {
		return st.Code
	}
	return StatusUnknown
}

var (
	ErrNotExists   = NewStatus(StatusNotExists, "")
	ErrDuplicates  = NewStatus(StatusDuplicates, "")
	ErrNoSpace     = NewStatus(StatusNoSpace, "")
	ErrTooBigData  = NewStatus(StatusTooBigData, "")
	ErrConflicts   = NewStatus(StatusConflicts, "")
	ErrIsInfinity  = NewStatus(StatusIsInfinity, "")
)
