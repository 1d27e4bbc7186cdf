package crm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/crmsync"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Sync(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRegistry_Sync(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	registry := NewRegistry()
	registry.Register(crmsync.TargetZohoCRM, client)

	req := Request{Service: crmsync.TargetZohoCRM, Module: crmsync.EntityLeads, Operation: crmsync.OperationCreate}
	client.On("Sync", ctx, req).Return(&Response{StatusCode: 200, RecordID: "1"}, nil)

	resp, err := registry.Sync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.RecordID)
	client.AssertExpectations(t)

	_, err = registry.Sync(ctx, Request{Service: "books"})
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestError_Details(t *testing.T) {
	e := &Error{StatusCode: 502, Message: "Bad Gateway", Body: []byte("<html>")}
	var details map[string]any
	require.NoError(t, json.Unmarshal(e.Details(), &details))
	assert.Equal(t, float64(502), details["status_code"])
	assert.NotContains(t, details, "body", "non-JSON bodies are dropped")
	assert.Contains(t, e.Error(), "502")
}
