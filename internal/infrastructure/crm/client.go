// Package crm talks to the external CRM. Queue items are turned into
// Requests by BuildRequest and dispatched through a Registry keyed by the
// item's target service.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/storefront/backend/internal/domain/crmsync"
)

// ErrUnknownService is returned when no client is registered for a target service
var ErrUnknownService = errors.New("crm: no client registered for service")

// Request is one CRM write
type Request struct {
	Service   string
	Module    string
	Operation crmsync.Operation
	// ExternalID is the local entity id for upserts and the CRM record id for deletes
	ExternalID string
	Record     map[string]any
	// DuplicateCheckFields drive upsert matching on the CRM side
	DuplicateCheckFields []string
}

// Response is the CRM's answer to a successful write
type Response struct {
	StatusCode int
	RecordID   string
	Body       json.RawMessage
}

// Error is a rejected or failed CRM call. Body is the raw CRM response when one was read.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Body       json.RawMessage
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("crm: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm: status %d: %s", e.StatusCode, e.Message)
}

// Details renders the error for the sync log's error_details column
func (e *Error) Details() json.RawMessage {
	out, _ := json.Marshal(struct {
		StatusCode int             `json:"status_code"`
		Code       string          `json:"code,omitempty"`
		Message    string          `json:"message"`
		Body       json.RawMessage `json:"body,omitempty"`
	}{e.StatusCode, e.Code, e.Message, validJSONOrNil(e.Body)})
	return out
}

// Client performs CRM writes
type Client interface {
	Sync(ctx context.Context, req Request) (*Response, error)
}

// Registry dispatches requests to the client registered for their service
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register binds a client to a target service, replacing any previous binding
func (r *Registry) Register(service string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[service] = client
}

// Sync implements Client
func (r *Registry) Sync(ctx context.Context, req Request) (*Response, error) {
	r.mu.RLock()
	client, ok := r.clients[req.Service]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, req.Service)
	}
	return client.Sync(ctx, req)
}

func validJSONOrNil(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

var _ Client = (*Registry)(nil)
