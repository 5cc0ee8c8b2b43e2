package model

import "time"

type QuotaRecord struct {
	UserID  string    `json:"user_id"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type SummaryResult struct {
	Summary     string    `json:"summary"`
	Model       string    `json:"model,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	InputChars  int       `json:"input_chars"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Summary     string    `json:"summary"`
	Model       string    `json:"model,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
