package budget

import "time"

// ProviderLedger is the per-provider slice of a BudgetLedger.
type ProviderLedger struct {
	Limit     float64
	Used      float64
	Requests  int64
	TokensIn  int64
	TokensOut int64
}

// Ledger is the two-level spend ledger from spec.md §3/§4.5.
type Ledger struct {
	GlobalLimit float64
	GlobalUsed  float64
	PerProvider map[string]*ProviderLedger
	ResetAt     time.Time
}

// Decision is the result of Check.
type Decision struct {
	Admitted          bool
	GlobalRemaining   float64
	ProviderRemaining float64
	Reason            string
}

// Recommendation is the result of Recommend.
type Recommendation struct {
	Recommended  string
	Reason       string
	Alternatives []string
}

// document is the JSON-equivalent persisted shape named in spec.md §6:
// {globalLimit, totalCost, serviceBreakdown, metadata, resetAt, lastUpdate}.
type document struct {
	GlobalLimit      float64                    `json:"globalLimit"`
	TotalCost        float64                    `json:"totalCost"`
	ServiceBreakdown map[string]*ProviderLedger `json:"serviceBreakdown"`
	Metadata         map[string]interface{}     `json:"metadata"`
	ResetAt          time.Time                  `json:"resetAt"`
	LastUpdate       time.Time                  `json:"lastUpdate"`
}
