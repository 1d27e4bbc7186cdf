package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/infrastructure/config"
)

const (
	maxResponseBytes = 1 << 20
	tokenEarlyExpiry = time.Minute
)

// ZohoClient writes records through the Zoho CRM v2 REST API.
// Access tokens come from the OAuth refresh-token grant and are cached until
// shortly before they expire.
type ZohoClient struct {
	accountsURL  string
	apiBaseURL   string
	clientID     string
	clientSecret string
	refreshToken string

	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewZohoClient creates a ZohoClient from config. A nil httpClient uses a
// client with a 30s timeout; per-call deadlines come from the context.
func NewZohoClient(cfg config.CRMConfig, httpClient *http.Client, logger *zap.Logger) *ZohoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &ZohoClient{
		accountsURL:  strings.TrimRight(cfg.AccountsURL, "/"),
		apiBaseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       logger,
		now:          time.Now,
	}
}

type zohoRecordResult struct {
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type zohoWriteResponse struct {
	Data []zohoRecordResult `json:"data"`
}

// Sync implements Client
func (c *ZohoClient) Sync(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("crm rate limiter: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("crm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read crm response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errorFromBody(resp.StatusCode, body)
	}

	var parsed zohoWriteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Code: "INVALID_RESPONSE", Message: err.Error(), Body: body}
	}
	if len(parsed.Data) == 0 {
		return nil, &Error{StatusCode: resp.StatusCode, Code: "EMPTY_RESPONSE", Message: "crm returned no record results", Body: body}
	}

	result := parsed.Data[0]
	if !strings.EqualFold(result.Status, "success") {
		return nil, &Error{StatusCode: resp.StatusCode, Code: result.Code, Message: result.Message, Body: body}
	}

	var details struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(result.Details, &details)

	return &Response{StatusCode: resp.StatusCode, RecordID: details.ID, Body: body}, nil
}

func (c *ZohoClient) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	moduleURL := c.apiBaseURL + "/crm/v2/" + url.PathEscape(req.Module)

	switch req.Operation {
	case crmsync.OperationCreate, crmsync.OperationUpdate:
		payload := map[string]any{"data": []map[string]any{req.Record}}
		if len(req.DuplicateCheckFields) > 0 {
			payload["duplicate_check_fields"] = req.DuplicateCheckFields
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode crm record: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, moduleURL+"/upsert", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	case crmsync.OperationDelete:
		if req.ExternalID == "" {
			return nil, ErrMissingRecordID
		}
		return http.NewRequestWithContext(ctx, http.MethodDelete, moduleURL+"?ids="+url.QueryEscape(req.ExternalID), nil)
	default:
		return nil, crmsync.ErrInvalidOperation
	}
}

// token returns a cached access token or refreshes it
func (c *ZohoClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("crm token refresh: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read crm token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorFromBody(resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode crm token response: %w", err)
	}
	if tok.AccessToken == "" {
		// Zoho reports refresh failures with 200 and an error field
		return "", &Error{StatusCode: resp.StatusCode, Code: "TOKEN_REFRESH_FAILED", Message: tok.Error, Body: body}
	}

	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime > tokenEarlyExpiry {
		lifetime -= tokenEarlyExpiry
	}
	c.accessToken = tok.AccessToken
	c.expiresAt = c.now().Add(lifetime)
	c.logger.Debug("CRM access token refreshed", zap.Duration("lifetime", lifetime))
	return c.accessToken, nil
}

func (c *ZohoClient) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// errorFromBody extracts Zoho's code/message from an error body when present
func errorFromBody(status int, body []byte) error {
	var payload struct {
		Code    string             `json:"code"`
		Message string             `json:"message"`
		Data    []zohoRecordResult `json:"data"`
	}
	e := &Error{StatusCode: status, Message: http.StatusText(status), Body: body}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Code != "":
			e.Code, e.Message = payload.Code, payload.Message
		case len(payload.Data) > 0:
			e.Code, e.Message = payload.Data[0].Code, payload.Data[0].Message
		}
	}
	return e
}

// AsError unwraps a *Error from err
func AsError(err error) (*Error, bool) {
	var crmErr *Error
	ok := errors.As(err, &crmErr)
	return crmErr, ok
}

var _ Client = (*ZohoClient)(nil)
