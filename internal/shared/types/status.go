package types

import (
	"net/http"
	"slices"
	"strconv"
)

// Status is an HTTP response status code. Any integer is representable;
// the named constants are the codes the engine reasons about.
type Status int

const (
	StatusOK           Status = 200
	StatusCreated      Status = 201
	StatusAccepted     Status = 202
	StatusNoContent    Status = 204
	StatusBadRequest   Status = 400
	StatusUnauthorized Status = 401
	StatusForbidden    Status = 403
	StatusNotFound     Status = 404
	StatusGone         Status = 410
	StatusServerError  Status = 500
)

// Code returns the numeric status code
func (s Status) Code() int {
	return int(s)
}

// Less orders statuses by numeric code
func (s Status) Less(other Status) bool {
	return s < other
}

// Known reports whether s is one of the named constants
func (s Status) Known() bool {
	switch s {
	case StatusOK, StatusCreated, StatusAccepted, StatusNoContent,
		StatusBadRequest, StatusUnauthorized, StatusForbidden, StatusNotFound,
		StatusGone, StatusServerError:
		return true
	}
	return false
}

// String returns "404 Not Found" style text
func (s Status) String() string {
	text := http.StatusText(int(s))
	if text == "" {
		return strconv.Itoa(int(s))
	}
	return strconv.Itoa(int(s)) + " " + text
}

// StatusPtr returns a pointer to a copy of s, for optional status arguments
func StatusPtr(s Status) *Status {
	return &s
}

// StatusSet is an expectation set of acceptable statuses
type StatusSet []Status

// Contains reports whether s is a member of the set
func (set StatusSet) Contains(s Status) bool {
	return slices.Contains(set, s)
}

// Sorted returns a copy of the set ordered by code
func (set StatusSet) Sorted() StatusSet {
	out := slices.Clone(set)
	slices.Sort(out)
	return out
}
