package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/ports"
)

const (
	// Taille max lue d'une réponse de plateforme.
	maxBodyBytes = 2 << 20

	DefaultHTTPTimeout = 15 * time.Second
)

// NewHTTPClient construit le client partagé par tous les adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// fetcher encapsule les appels HTTP des adapters et traduit les échecs
// en *ports.FetchError.
type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(client *http.Client) fetcher {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return fetcher{client: client, userAgent: buildinfo.UserAgent()}
}

// do exécute req et renvoie le corps (tronqué à maxBodyBytes) d'une réponse 2xx.
func (f fetcher) do(req *http.Request) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	res, err := f.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, &ports.FetchError{Code: ports.CodeNetwork, Message: "request aborted", Err: ctxErr}
		}
		return nil, &ports.FetchError{Code: ports.CodeNetwork, Message: "http request", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &ports.FetchError{Code: ports.CodeNetwork, Message: "read body", Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError(res.StatusCode, body)
	}
	return body, nil
}

func (f fetcher) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	body, err := f.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ports.FetchError{Code: ports.CodeDecode, Message: "decode json", Err: err}
	}
	return nil
}

func statusError(status int, body []byte) *ports.FetchError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	msg := fmt.Sprintf("http %d", status)
	if snippet != "" {
		msg += ": " + snippet
	}
	code := ports.CodeHTTPStatus
	switch status {
	case http.StatusNotFound:
		code = ports.CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		code = ports.CodeAuth
	}
	return &ports.FetchError{Code: code, Message: msg}
}

func hasCode(err error, code string) bool {
	var fe *ports.FetchError
	return errors.As(err, &fe) && fe.Code == code
}

// markAll enregistre la même erreur pour chaque compte.
func markAll(fr *ports.FetchResult, accounts []domain.PlatformAccount, err error) {
	for _, a := range accounts {
		fr.Errors = append(fr.Errors, ports.AccountError{AccountID: a.ID, PlatformUserID: a.PlatformUserID, Err: err})
	}
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
