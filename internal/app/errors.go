package app

import (
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

var (
	ErrNotFound = ports.ErrNotFound
	ErrConflict = ports.ErrConflict
)

// ValidationError signale une requête rejetée avant tout accès au stockage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
