package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Severity ranks how confident a phone pattern check is that the number is synthetic.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityNone:     "NONE",
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseSeverity converts a severity name back to its value.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(name, s) {
			return sev, nil
		}
	}
	return SeverityNone, eris.Errorf("model: unknown severity %q", s)
}

// MarshalJSON encodes the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return eris.Wrap(err, "model: unmarshal severity")
	}
	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// LedgerAction is the credit consequence derived from a verdict.
type LedgerAction string

const (
	ActionAcceptAndCharge LedgerAction = "ACCEPT_AND_CHARGE"
	ActionRejectNoCharge  LedgerAction = "REJECT_NO_CHARGE"
	ActionRejectAndRefund LedgerAction = "REJECT_AND_REFUND"
)

// ValidationVerdict is the combined result of every check run on a candidate.
type ValidationVerdict struct {
	ValidPhone      bool     `json:"valid_phone"`
	PhoneSeverity   Severity `json:"phone_severity"`
	PhoneCategory   string   `json:"phone_category,omitempty"`
	PhoneReasons    []string `json:"phone_reasons,omitempty"`
	ValidEmail      bool     `json:"valid_email"`
	EmailReasons    []string `json:"email_reasons,omitempty"`
	DomainConfirmed bool     `json:"domain_confirmed"`
	ValidName       bool     `json:"valid_name"`
	NameReasons     []string `json:"name_reasons,omitempty"`
	IsBlacklisted   bool     `json:"is_blacklisted"`
	IsDuplicate     bool     `json:"is_duplicate"`
	DuplicateOf     *LeadRef `json:"duplicate_of,omitempty"`
}

// MarkBlacklisted flags the verdict as blacklisted. A blacklisted phone is
// never valid, whatever the pattern checks said.
func (v *ValidationVerdict) MarkBlacklisted() {
	v.IsBlacklisted = true
	v.ValidPhone = false
}

// Critical reports whether the phone check produced a CRITICAL verdict.
func (v *ValidationVerdict) Critical() bool {
	return v.PhoneSeverity == SeverityCritical
}

// Invalid reports whether the verdict rejects the lead as untrustworthy.
func (v *ValidationVerdict) Invalid() bool {
	return v.IsBlacklisted || v.Critical()
}

// Action derives the ledger action. alreadyCharged says whether a charge was
// taken for this candidate before the verdict was computed.
func (v *ValidationVerdict) Action(alreadyCharged bool) LedgerAction {
	switch {
	case v.Invalid():
		if alreadyCharged {
			return ActionRejectAndRefund
		}
		return ActionRejectNoCharge
	case v.IsDuplicate:
		return ActionRejectNoCharge
	default:
		return ActionAcceptAndCharge
	}
}

// Status maps the verdict onto a terminal lead status.
func (v *ValidationVerdict) Status() LeadStatus {
	switch {
	case v.Invalid():
		return LeadStatusRejectedInvalid
	case v.IsDuplicate:
		return LeadStatusRejectedDuplicate
	default:
		return LeadStatusAccepted
	}
}

// RejectionReason returns the human-readable reason for a rejected verdict,
// or an empty string when the verdict accepts the lead.
func (v *ValidationVerdict) RejectionReason() string {
	switch {
	case v.IsBlacklisted:
		return "blacklisted"
	case v.Critical():
		if len(v.PhoneReasons) > 0 {
			return v.PhoneReasons[0]
		}
		return "invalid phone"
	case v.IsDuplicate:
		return "duplicate"
	default:
		return ""
	}
}

// Snapshot encodes the verdict for storage alongside ledger entries.
func (v *ValidationVerdict) Snapshot() json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
