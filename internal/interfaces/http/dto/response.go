package dto

// Response is the envelope of every admin API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewMessageResponse creates a success response carrying only a message
func NewMessageResponse(message string) Response {
	return Response{Success: true, Message: message}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	}
}

// NewErrorResponseWithRequestID creates an error response tagged with the request id
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	r := NewErrorResponse(code, message)
	r.Error.RequestID = requestID
	return r
}

// NewValidationErrorResponse creates a 400 response body listing field errors
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	r := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	r.Error.Details = details
	return r
}

// WebhookAck is the body returned to the payment gateway. It is identical for
// every handled delivery so the gateway learns nothing about the outcome.
type WebhookAck struct {
	Received bool `json:"received"`
}

// SyncLogActionRequest is the body of POST /admin/sync-logs
type SyncLogActionRequest struct {
	LogID  string `json:"logId" binding:"required,uuid"`
	Action string `json:"action" binding:"required,oneof=retry"`
}

// SyncLogListQuery binds the sync log listing query string
type SyncLogListQuery struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" binding:"omitempty,min=1"`
	Status     string `form:"status"`
	EntityType string `form:"entityType"`
	Operation  string `form:"operation"`
	Search     string `form:"search"`
	SortBy     string `form:"sortBy"`
	SortOrder  string `form:"sortOrder" binding:"omitempty,oneof=asc desc ASC DESC"`
}
