package model

// ErrorResponse is the consistent JSON structure for all API failure
// responses. Business failures carry it with HTTP 200, malformed requests
// with HTTP 400; no composite partial-success status is ever exposed.
type ErrorResponse struct {
	Error string `json:"error"`
}
