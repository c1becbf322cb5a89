package store

import "errors"

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists means an insert violated a uniqueness constraint
	// (duplicate id or duplicate natural key).
	ErrAlreadyExists = errors.New("record already exists")

	// ErrPageOutOfRange means a live log entry exceeded the book's page
	// count. Only AddLog returns this; merge inserts bypass the check.
	ErrPageOutOfRange = errors.New("page exceeds book total pages")
)
