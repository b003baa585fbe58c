package usage

import "time"

// Usage is a user's analysis counter.
type Usage struct {
	ContractsAnalyzed int       `json:"contractsAnalyzed"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}
