package engine

import (
	"errors"

	"github.com/civicgrid/complaint-service/internal/database"
)

var (
	// ErrNotFound mirrors the storage layer's not-found condition so engine
	// callers only need one sentinel.
	ErrNotFound = database.ErrNotFound

	// ErrValidation marks malformed escalation input.
	ErrValidation = errors.New("invalid escalation request")

	// ErrStorage marks a transactional write failure; the unit of work was
	// rolled back.
	ErrStorage = errors.New("storage failure")
)
