package model

import "time"

// VoucherStatusCompleted is the only status a voucher is ever written with;
// voucher rows are write-once.
const VoucherStatusCompleted = "completed"

// Voucher is the redemption receipt: proof that a specific student→escrow
// payment happened for a specific reward. UUID is the canonical untruncated
// value used for lookup; the ledger memo carries a truncated prefix of it.
type Voucher struct {
	UUID          string    `json:"voucher_uuid"`
	StudentID     string    `json:"studentId"`
	RewardID      string    `json:"rewardId"`
	AmountStroops int64     `json:"amountStroops"`
	TxHash        string    `json:"txHash"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}
