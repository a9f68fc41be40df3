package models

import "errors"

var (
	// ErrSourceUnavailable means the source has no table configured. It is skipped.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceQuery means a source query failed. Only that source is skipped.
	ErrSourceQuery = errors.New("source query failed")
	// ErrNodeCreation means a graph node could not be ensured. Only that candidate is skipped.
	ErrNodeCreation = errors.New("graph node creation failed")
	// ErrEdgeConflict means a concurrent writer created the same active edge first.
	ErrEdgeConflict = errors.New("active edge already exists")
	// ErrRunNotFound aborts the call that referenced the run.
	ErrRunNotFound = errors.New("resolution run not found")
	// ErrRunNotApplied rejects reversing a run that is still pending review.
	ErrRunNotApplied = errors.New("resolution run has not been applied")
)
