package model

import "encoding/json"

// DistributeRequest represents request for POST /tokens/distribute
type DistributeRequest struct {
	StudentID     string      `json:"studentId"`
	Amount        json.Number `json:"amount"` // positive decimal token quantity
	StudentTaskID string      `json:"studentTaskId"`
}

// DistributeResponse represents response for POST /tokens/distribute
type DistributeResponse struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash"`
	Message string `json:"message,omitempty"`
}
