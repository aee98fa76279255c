package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/livewatch/internal/buildinfo"
)

type client struct {
	baseURL string
	timeout time.Duration
}

// do envoie la requête et recopie la réponse (JSON indenté si possible) dans out.
// Un statut >= 400 est renvoyé comme erreur après affichage du corps.
func (c *client) do(ctx context.Context, method, path string, body any, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	url := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := (&http.Client{Timeout: c.timeout}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := writePretty(out, b); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return nil
}

func writePretty(out io.Writer, b []byte) error {
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pretty)
	}
	if _, err := out.Write(b); err != nil {
		return err
	}
	_, err := out.Write([]byte("\n"))
	return err
}
