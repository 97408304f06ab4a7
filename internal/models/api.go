package models

// WebSocket message types
const WSTypeState = "state"

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type TeacherTokenRequest struct {
	Passcode string `json:"passcode"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
