package domain

import (
	"time"
)

// Screening flag severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ScreenRule is a tenant-configurable CEL expression evaluated against a
// claim and its derived features. A rule that evaluates to true attaches an
// advisory ScreenFlag to the assessment; it never changes the model score.
type ScreenRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Expression is a CEL expression returning bool.
	// Example: "tariff_ratio > 2.0 && los_days <= 1"
	Expression string `json:"expression"`

	// Severity of the emitted flag: info, warning, or critical.
	Severity string `json:"severity"`

	// Reason is the human-readable explanation attached to the flag.
	Reason string `json:"reason"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
