package dto

import "time"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	// QueryTime is only reported for internal errors, in milliseconds
	QueryTime *int64 `json:"queryTime,omitempty"`
}

// NewErrorResponse creates an error body without timing
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

// NewTimedErrorResponse creates an error body carrying the elapsed time
func NewTimedErrorResponse(message string, elapsed time.Duration) ErrorResponse {
	ms := elapsed.Milliseconds()
	return ErrorResponse{Error: message, QueryTime: &ms}
}

// NewAnalyticsResponse builds the success body of an analytics endpoint.
// Rows are stored under the endpoint's result field, e.g. "products".
func NewAnalyticsResponse(field string, rows any, count int, elapsed time.Duration, cached bool) map[string]any {
	return map[string]any{
		field:       rows,
		"count":     count,
		"queryTime": elapsed.Milliseconds(),
		"cached":    cached,
	}
}

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
