package model

import "encoding/json"

// RedeemRequest represents request for POST /tokens/redeem
type RedeemRequest struct {
	StudentID string      `json:"studentId"`
	Amount    json.Number `json:"amount"` // positive decimal token quantity
	RewardID  string      `json:"rewardId"`
}

// RedeemResponse represents response for POST /tokens/redeem
type RedeemResponse struct {
	Success     bool   `json:"success"`
	VoucherUUID string `json:"voucher_uuid"`
	Hash        string `json:"hash"`
	Message     string `json:"message,omitempty"`
}
