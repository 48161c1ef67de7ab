// Package model defines the data types shared across the validation pipeline,
// the credit ledger and the datastore.
package model

import (
	"time"
)

// LeadStatus is the terminal outcome of a candidate's pipeline run.
type LeadStatus string

const (
	LeadStatusAccepted          LeadStatus = "accepted"
	LeadStatusRejectedInvalid   LeadStatus = "rejected_invalid"
	LeadStatusRejectedDuplicate LeadStatus = "rejected_duplicate"
)

// PipelineState tracks where a candidate is in the validation state machine.
type PipelineState string

const (
	StateReceived            PipelineState = "received"
	StateNormalizing         PipelineState = "normalizing"
	StatePatternChecking     PipelineState = "pattern_checking"
	StateEmailDomainChecking PipelineState = "email_domain_checking"
	StateBlacklistChecking   PipelineState = "blacklist_checking"
	StateDuplicateChecking   PipelineState = "duplicate_checking"
	StateVerdictReady        PipelineState = "verdict_ready"
	StateLedgerApplied       PipelineState = "ledger_applied"
)

// CandidateLead is an unvalidated business contact proposed by a lead source.
type CandidateLead struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	BusinessCategory string `json:"business_category,omitempty"`
	Contact          string `json:"contact,omitempty"`
	Website          string `json:"website,omitempty"`
	City             string `json:"city,omitempty"`
	SourceRef        string `json:"source_ref,omitempty"`
}

// LeadRef points at a previously persisted lead or a confirmed customer.
type LeadRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "lead" or "customer"
}

// Lead ref kinds.
const (
	RefKindLead     = "lead"
	RefKindCustomer = "customer"
)

// PersistedLead is a lead record stored after a verdict exists.
type PersistedLead struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	NormalizedPhone string            `json:"normalized_phone"`
	Email           string            `json:"email"`
	BusinessName    string            `json:"business_name"`
	Category        string            `json:"category,omitempty"`
	Verdict         ValidationVerdict `json:"verdict"`
	Status          LeadStatus        `json:"status"`
	CreditCharged   bool              `json:"credit_charged"`
	CreditRefunded  bool              `json:"credit_refunded"`
	CreatedAt       time.Time         `json:"created_at"`
	AuditedAt       *time.Time        `json:"audited_at,omitempty"`
}

// Ref returns a LeadRef pointing at this lead.
func (l *PersistedLead) Ref() LeadRef {
	return LeadRef{ID: l.ID, Kind: RefKindLead}
}

// Customer is a confirmed customer from the CRM. The pipeline only reads it.
// CustomerStatusActive marks a customer row that counts as an existing
// client when leads are audited.
const CustomerStatusActive = "cliente"

type Customer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
}

// BlacklistEntry records a phone number judged invalid. Entries are never
// updated or deleted by the pipeline.
type BlacklistEntry struct {
	Phone        string    `json:"phone"`
	BusinessName string    `json:"business_name,omitempty"`
	Reason       string    `json:"reason"`
	Source       string    `json:"source"`
	UserID       string    `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Blacklist sources.
const (
	BlacklistSourcePipeline = "pipeline"
	BlacklistSourceReaudit  = "reaudit"
	BlacklistSourceManual   = "manual"
)
