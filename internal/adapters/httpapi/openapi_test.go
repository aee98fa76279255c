package httpapi

import (
	"net/http"
	"testing"
)

func TestAPI_OpenAPIListsRoutes(t *testing.T) {
	api := newTestAPI(t)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if code := api.do(t, http.MethodGet, "/api/v1/openapi.json", nil, &doc); code != http.StatusOK {
		t.Fatalf("openapi: %d", code)
	}
	if doc.OpenAPI != "3.0.3" {
		t.Fatalf("openapi version: %q", doc.OpenAPI)
	}
	want := map[string]string{
		"/api/v1/poll/run":               "post",
		"/api/v1/accounts":               "post",
		"/api/v1/accounts/{id}/enabled":  "put",
		"/api/v1/accounts/{id}/sessions": "get",
		"/api/v1/accounts/{id}/events":   "get",
		"/api/v1/live":                   "get",
		"/api/v1/settings":               "put",
	}
	for path, method := range want {
		ops, ok := doc.Paths[path]
		if !ok {
			t.Fatalf("missing path %s", path)
		}
		if _, ok := ops[method]; !ok {
			t.Fatalf("missing %s %s", method, path)
		}
	}
}
