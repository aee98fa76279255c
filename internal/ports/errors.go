package ports

import "errors"

var ErrNotFound = errors.New("not found")

// ErrConflict signale une violation de contrainte d'unicité.
// Pour les sessions: une session ouverte existe déjà pour ce compte.
var ErrConflict = errors.New("conflict")
