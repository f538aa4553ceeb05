package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/version"
)

// OpenAPIDocument builds the OpenAPI 3 description of the broker's HTTP
// surface. It is served at /openapi.json and printed by --print-openapi.
func OpenAPIDocument() map[string]any {
	jsonBody := func(schema map[string]any) map[string]any {
		return map[string]any{
			"content": map[string]any{
				"application/json": map[string]any{"schema": schema},
			},
		}
	}
	obj := func(props map[string]any, required ...string) map[string]any {
		s := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	}
	anyItem := map[string]any{"description": "opaque JSON item"}
	errSchema := obj(map[string]any{"error": map[string]any{"type": "string"}})
	successSchema := obj(map[string]any{
		"success": map[string]any{"type": "boolean"},
		"message": map[string]any{"type": "string"},
	})
	acceptedSchema := obj(map[string]any{
		"operation_id": map[string]any{"type": "string"},
		"status":       map[string]any{"type": "string"},
	})
	itemReq := jsonBody(obj(map[string]any{"item": anyItem}, "item"))

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "poolbroker",
			"version": version.GitCommit,
			"description": "Generic resource-pool broker: borrow, return, and " +
				"submit opaque JSON items with webhook subscriber fan-out.",
		},
		"paths": map[string]any{
			"/borrow": map[string]any{
				"get": map[string]any{
					"summary": "Borrow an item from the pool",
					"parameters": []any{
						map[string]any{
							"name": "wait", "in": "query", "required": false,
							"description": "seconds to wait for an item when the pool is empty",
							"schema":      map[string]any{"type": "integer", "minimum": 0},
						},
						map[string]any{
							"name": "params", "in": "query", "required": false,
							"description": "JSON value forwarded to borrow subscribers",
							"schema":      map[string]any{"type": "string"},
						},
					},
					"responses": map[string]any{
						"200": jsonBody(obj(map[string]any{
							"item":         anyItem,
							"borrow_token": map[string]any{"type": "string"},
						})),
						"502": jsonBody(errSchema),
						"503": jsonBody(errSchema),
					},
				},
			},
			"/return": map[string]any{
				"post": map[string]any{
					"summary": "Return a borrowed item (asynchronous)",
					"requestBody": jsonBody(obj(map[string]any{
						"item":         anyItem,
						"borrow_token": map[string]any{"type": "string"},
					}, "item", "borrow_token")),
					"responses": map[string]any{
						"202": jsonBody(acceptedSchema),
						"401": jsonBody(errSchema),
						"404": jsonBody(errSchema),
					},
				},
			},
			"/submit": map[string]any{
				"post": map[string]any{
					"summary":     "Submit a new item into the pool (asynchronous)",
					"requestBody": itemReq,
					"responses": map[string]any{
						"202": jsonBody(acceptedSchema),
					},
				},
			},
			"/operations/{id}": map[string]any{
				"get": map[string]any{
					"summary": "Poll operation status",
					"parameters": []any{map[string]any{
						"name": "id", "in": "path", "required": true,
						"schema": map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": jsonBody(obj(map[string]any{
							"operation_id": map[string]any{"type": "string"},
							"status":       map[string]any{"type": "string"},
							"message":      map[string]any{"type": "string"},
						})),
						"404": jsonBody(errSchema),
					},
				},
			},
			"/operations/{id}/events": map[string]any{
				"get": map[string]any{
					"summary": "Stream operation state changes as server-sent events",
					"parameters": []any{map[string]any{
						"name": "id", "in": "path", "required": true,
						"schema": map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "text/event-stream with a heartbeat every 15 seconds",
						},
					},
				},
			},
			"/admin/items": map[string]any{
				"get": map[string]any{
					"summary": "List pool items",
					"responses": map[string]any{"200": jsonBody(obj(map[string]any{
						"items": map[string]any{"type": "array", "items": anyItem},
						"count": map[string]any{"type": "integer"},
					}))},
				},
				"delete": map[string]any{
					"summary":     "Remove an item from the pool",
					"requestBody": itemReq,
					"responses": map[string]any{
						"200": jsonBody(successSchema),
						"404": jsonBody(errSchema),
					},
				},
			},
			"/admin/borrowed": map[string]any{
				"get": map[string]any{
					"summary": "List the borrowed-item ledger",
					"responses": map[string]any{"200": jsonBody(obj(map[string]any{
						"borrowed": map[string]any{"type": "array"},
						"count":    map[string]any{"type": "integer"},
					}))},
				},
				"delete": map[string]any{
					"summary":     "Remove a ledger entry without returning the item",
					"requestBody": itemReq,
					"responses": map[string]any{
						"200": jsonBody(successSchema),
						"404": jsonBody(errSchema),
					},
				},
			},
			"/admin/force-return": map[string]any{
				"post": map[string]any{
					"summary":     "Force an item back into the pool and clear its ledger entry",
					"requestBody": itemReq,
					"responses":   map[string]any{"200": jsonBody(successSchema)},
				},
			},
			"/admin/operations": map[string]any{
				"get": map[string]any{
					"summary": "List all operations",
					"responses": map[string]any{"200": jsonBody(obj(map[string]any{
						"operations": map[string]any{"type": "array"},
						"count":      map[string]any{"type": "integer"},
					}))},
				},
			},
			"/admin/operations/{id}": map[string]any{
				"delete": map[string]any{
					"summary": "Delete an operation record",
					"parameters": []any{map[string]any{
						"name": "id", "in": "path", "required": true,
						"schema": map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": jsonBody(successSchema),
						"404": jsonBody(errSchema),
					},
				},
			},
			"/admin/stats": map[string]any{
				"get": map[string]any{
					"summary": "Pool and operation counters",
					"responses": map[string]any{"200": jsonBody(obj(map[string]any{
						"free_count":         map[string]any{"type": "integer"},
						"borrowed_count":     map[string]any{"type": "integer"},
						"pending_operations": map[string]any{"type": "integer"},
						"failed_operations":  map[string]any{"type": "integer"},
					}))},
				},
			},
			"/health": map[string]any{
				"get": map[string]any{
					"summary":   "Broker liveness, including backing-store reachability",
					"responses": map[string]any{"200": jsonBody(obj(map[string]any{}))},
				},
			},
		},
	}
}

// OpenAPIJSON renders the document as indented JSON for --print-openapi.
func OpenAPIJSON() (string, error) {
	data, err := json.MarshalIndent(OpenAPIDocument(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// openAPIHandler handles GET /openapi.json.
func (s *Server) openAPIHandler(c *gin.Context) {
	c.JSON(http.StatusOK, OpenAPIDocument())
}
