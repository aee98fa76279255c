package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/livewatch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/livewatch/internal/domain"
	"github.com/Guilhem-Bonnet/livewatch/internal/httpjson"
)

type obj = map[string]any

func ref(name string) obj { return obj{"$ref": "#/components/schemas/" + name} }

func jsonContent(schema obj) obj {
	return obj{"application/json": obj{"schema": schema}}
}

func jsonOK(schema obj) obj {
	return obj{"description": "OK", "content": jsonContent(schema)}
}

func jsonBody(schema obj) obj {
	return obj{"required": true, "content": jsonContent(schema)}
}

func arrayOf(schema obj) obj { return obj{"type": "array", "items": schema} }

func idParam() []any {
	return []any{obj{"name": "id", "in": "path", "required": true, "schema": obj{"type": "string"}}}
}

func limitParam() []any {
	return []any{obj{"name": "limit", "in": "query", "schema": obj{"type": "integer", "minimum": 1}}}
}

func platformEnum() []any {
	out := make([]any, 0, len(domain.Platforms()))
	for _, p := range domain.Platforms() {
		out = append(out, string(p))
	}
	return out
}

// openAPIDocument décrit l'API v1; maintenu à la main avec router.go.
func openAPIDocument() obj {
	jsonErr := obj{"description": "Error", "content": jsonContent(ref("Error"))}
	str := obj{"type": "string"}
	dateTime := obj{"type": "string", "format": "date-time"}
	integer := obj{"type": "integer"}

	schemas := obj{
		"Error": obj{
			"type":       "object",
			"properties": obj{"error": str},
			"required":   []any{"error"},
		},
		"Account": obj{
			"type": "object",
			"properties": obj{
				"id":               str,
				"platform":         obj{"type": "string", "enum": platformEnum()},
				"platformUserId":   str,
				"platformUsername": str,
				"isEnabled":        obj{"type": "boolean"},
				"lastCheckedAt":    dateTime,
				"nextCheckAt":      dateTime,
				"createdAt":        dateTime,
				"updatedAt":        dateTime,
			},
		},
		"CreateAccountRequest": obj{
			"type": "object",
			"properties": obj{
				"platform":         obj{"type": "string", "enum": platformEnum()},
				"platformUserId":   str,
				"platformUsername": str,
			},
			"required":             []any{"platform", "platformUserId"},
			"additionalProperties": false,
		},
		"SetEnabledRequest": obj{
			"type":       "object",
			"properties": obj{"enabled": obj{"type": "boolean"}},
			"required":   []any{"enabled"},
		},
		"Session": obj{
			"type": "object",
			"properties": obj{
				"id":           str,
				"accountId":    str,
				"isLive":       obj{"type": "boolean"},
				"startedAt":    dateTime,
				"endedAt":      dateTime,
				"title":        str,
				"category":     str,
				"viewerCount":  integer,
				"streamUrl":    str,
				"thumbnailUrl": str,
			},
		},
		"LiveCacheEntry": obj{
			"type": "object",
			"properties": obj{
				"accountId":    str,
				"platform":     str,
				"username":     str,
				"sessionId":    str,
				"startedAt":    dateTime,
				"title":        str,
				"category":     str,
				"viewerCount":  integer,
				"streamUrl":    str,
				"thumbnailUrl": str,
				"updatedAt":    dateTime,
			},
		},
		"Health": obj{
			"type": "object",
			"properties": obj{
				"status":  str,
				"events":  obj{"type": "object", "properties": obj{"subscribers": integer, "dropped": integer}},
				"limiter": obj{"type": "object", "properties": obj{"limit": integer, "inFlight": integer}},
			},
		},
		"StatusEvent": obj{
			"type": "object",
			"properties": obj{
				"id":        str,
				"accountId": str,
				"type":      obj{"type": "string", "enum": []any{string(domain.EventWentLive), string(domain.EventWentOffline)}},
				"payload":   obj{"type": "object", "additionalProperties": true},
				"createdAt": dateTime,
			},
		},
		"PollResult": obj{
			"type": "object",
			"properties": obj{
				"ok":         obj{"type": "boolean"},
				"processed":  integer,
				"live":       integer,
				"unknown":    integer,
				"failed":     integer,
				"runId":      str,
				"durationMs": integer,
			},
			"required": []any{"ok", "processed"},
		},
		"PollSettings": obj{
			"type": "object",
			"properties": obj{
				"batchSize":          obj{"type": "integer", "minimum": 1, "maximum": 10000},
				"accountConcurrency": obj{"type": "integer", "minimum": 1, "maximum": 64},
			},
		},
	}

	ok200 := obj{"200": obj{"description": "OK"}}
	paths := obj{
		"/api/v1/health":       obj{"get": obj{"responses": obj{"200": jsonOK(ref("Health"))}}},
		"/api/v1/version":      obj{"get": obj{"responses": ok200}},
		"/api/v1/openapi.json": obj{"get": obj{"responses": ok200}},
		"/api/v1/events":       obj{"get": obj{"responses": obj{"200": obj{"description": "SSE"}}}},
		"/api/v1/poll/run": obj{
			"post": obj{"responses": obj{"200": jsonOK(ref("PollResult")), "500": jsonOK(ref("PollResult"))}},
		},
		"/api/v1/accounts": obj{
			"get": obj{
				"parameters": limitParam(),
				"responses":  obj{"200": jsonOK(arrayOf(ref("Account"))), "500": jsonErr},
			},
			"post": obj{
				"requestBody": jsonBody(ref("CreateAccountRequest")),
				"responses":   obj{"201": jsonOK(ref("Account")), "400": jsonErr, "409": jsonErr, "500": jsonErr},
			},
		},
		"/api/v1/accounts/{id}": obj{
			"get": obj{
				"parameters": idParam(),
				"responses":  obj{"200": jsonOK(ref("Account")), "404": jsonErr, "500": jsonErr},
			},
		},
		"/api/v1/accounts/{id}/enabled": obj{
			"put": obj{
				"parameters":  idParam(),
				"requestBody": jsonBody(ref("SetEnabledRequest")),
				"responses":   obj{"200": jsonOK(ref("Account")), "400": jsonErr, "404": jsonErr, "500": jsonErr},
			},
		},
		"/api/v1/accounts/{id}/sessions": obj{
			"get": obj{
				"parameters": append(idParam(), limitParam()...),
				"responses":  obj{"200": jsonOK(arrayOf(ref("Session"))), "404": jsonErr, "500": jsonErr},
			},
		},
		"/api/v1/accounts/{id}/events": obj{
			"get": obj{
				"parameters": append(idParam(), limitParam()...),
				"responses":  obj{"200": jsonOK(arrayOf(ref("StatusEvent"))), "404": jsonErr, "500": jsonErr},
			},
		},
		"/api/v1/live": obj{
			"get": obj{
				"parameters": append(limitParam(),
					obj{"name": "source", "in": "query", "schema": obj{"type": "string", "enum": []any{"db", "redis"}}},
					obj{"name": "platform", "in": "query", "schema": obj{"type": "string", "enum": platformEnum()}},
				),
				"responses": obj{
					"200": jsonOK(arrayOf(obj{"oneOf": []any{ref("Session"), ref("LiveCacheEntry")}})),
					"400": jsonErr, "500": jsonErr, "502": jsonErr, "503": jsonErr,
				},
			},
		},
		"/api/v1/settings": obj{
			"get": obj{"responses": obj{"200": jsonOK(ref("PollSettings")), "500": jsonErr}},
			"put": obj{
				"requestBody": jsonBody(ref("PollSettings")),
				"responses":   obj{"200": jsonOK(ref("PollSettings")), "400": jsonErr, "500": jsonErr},
			},
		},
	}

	return obj{
		"openapi":    "3.0.3",
		"info":       obj{"title": "livewatch API", "version": buildinfo.Version},
		"components": obj{"schemas": schemas},
		"paths":      paths,
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, openAPIDocument())
}
