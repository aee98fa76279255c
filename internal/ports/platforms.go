package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
)

// PlatformAdapter interroge une plateforme pour un lot de comptes.
//
// Les comptes reçus appartiennent tous à la même plateforme. Un compte absent
// à la fois de Snapshots et de Errors sera considéré hors ligne par l'appelant.
// Aucun adapter n'écrit dans le stockage.
type PlatformAdapter interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, accounts []domain.PlatformAccount) FetchResult
}

type FetchResult struct {
	// Indexé par PlatformUserID (pas par l'id interne).
	Snapshots map[string]domain.Snapshot
	Errors    []AccountError
}

func NewFetchResult() FetchResult {
	return FetchResult{Snapshots: map[string]domain.Snapshot{}}
}

type AccountError struct {
	AccountID      string
	PlatformUserID string
	Err            error
}

// Codes stables des erreurs de fetch.
const (
	CodeHTTPStatus         = "http_status"
	CodeNetwork            = "network_error"
	CodeDecode             = "decode_error"
	CodeNotFound           = "not_found"
	CodeAuth               = "auth_error"
	CodeTokenRejected      = "token_error"
	CodeMissingCredentials = "missing_credentials"
	CodeIDMismatch         = "id_mismatch"
	CodeNoAdapter          = "no_adapter"
)

// FetchError permet aux adapters de renvoyer un code d'erreur stable,
// repris tel quel dans les logs du poller.
type FetchError struct {
	Code    string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }
