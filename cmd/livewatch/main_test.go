package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, srvURL string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--server", srvURL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_AccountsAdd(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/accounts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"a1","platform":"kick"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "accounts", "add", "kick", "123", "--username", "Streamer")
	require.NoError(t, err)
	require.Equal(t, "kick", got["platform"])
	require.Equal(t, "123", got["platformUserId"])
	require.Equal(t, "Streamer", got["platformUsername"])
	require.Contains(t, out, `"id": "a1"`)
}

func TestCLI_ErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "accounts", "sessions", "missing")
	require.Error(t, err)
	require.Contains(t, out, "not found")
}

func TestCLI_SettingsSetSendsOnlyChangedFlags(t *testing.T) {
	var got map[string]int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv.URL, "settings", "set", "--concurrency", "3")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"accountConcurrency": 3}, got)
}
