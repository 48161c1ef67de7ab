// Package validate classifies normalized lead fields against placeholder
// and synthetic-data heuristics. Every check is pure and table-driven.
package validate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/leadgate/internal/normalize"
)

// Validator holds the compiled rule tables. It is safe for concurrent use.
type Validator struct {
	pack  *Pack
	phone []PhoneRule
	email []fieldRule
	name  []fieldRule
}

// fieldRule is a placeholder rule over an email or a folded name. Unlike the
// phone table, every matching rule contributes a reason.
type fieldRule struct {
	Reason string
	Match  func(s string) bool
}

// EmailResult is the outcome of the synchronous email check.
type EmailResult struct {
	Valid   bool
	Reasons []string
	// Domain is set when the email passed and its domain may be resolved.
	Domain string
}

// NameResult is the outcome of the name check.
type NameResult struct {
	Valid   bool
	Reasons []string
}

// New compiles a Validator from a rule pack.
func New(pack *Pack) *Validator {
	return &Validator{
		pack:  pack,
		phone: phoneRules(bodySet(pack.Phone.Decoys), bodySet(pack.Phone.SequenceExempt)),
		email: emailRules(pack.Email),
		name:  nameRules(pack.Name),
	}
}

func bodySet(bodies []string) map[string]struct{} {
	set := make(map[string]struct{}, len(bodies))
	for _, b := range bodies {
		set[normalize.Digits(b)] = struct{}{}
	}
	return set
}

// NewDefault compiles a Validator from the embedded rule pack.
func NewDefault() (*Validator, error) {
	p, err := DefaultPack()
	if err != nil {
		return nil, err
	}
	return New(p), nil
}

// Version returns a combined identifier for the phone table and rule pack.
func (v *Validator) Version() string {
	return fmt.Sprintf("phone-v%d/pack-v%d", PhoneRulesVersion, v.pack.Version)
}

// PhoneRules returns a copy of the ordered phone rule table.
func (v *Validator) PhoneRules() []PhoneRule {
	out := make([]PhoneRule, len(v.phone))
	copy(out, v.phone)
	return out
}

// CheckEmail validates a normalized email. A failed check leaves Domain
// empty so no lookup is spent on it.
func (v *Validator) CheckEmail(email string) EmailResult {
	if email == "" {
		return EmailResult{Reasons: []string{"missing email"}}
	}
	_, domain, ok := splitEmail(email)
	if !ok {
		return EmailResult{Reasons: []string{"malformed email"}}
	}

	var reasons []string
	for _, r := range v.email {
		if r.Match(email) {
			reasons = append(reasons, r.Reason)
		}
	}
	if len(reasons) > 0 {
		return EmailResult{Reasons: reasons}
	}
	return EmailResult{Valid: true, Domain: domain}
}

// CheckName validates a business name.
func (v *Validator) CheckName(name string) NameResult {
	name = normalize.Name(name)
	if name == "" {
		return NameResult{Reasons: []string{"missing name"}}
	}
	if utf8.RuneCountInString(name) < v.pack.Name.MinLength {
		return NameResult{Reasons: []string{"name too short"}}
	}

	folded := normalize.Fold(name)
	var reasons []string
	for _, r := range v.name {
		if r.Match(folded) {
			reasons = append(reasons, r.Reason)
		}
	}
	return NameResult{Valid: len(reasons) == 0, Reasons: reasons}
}

// addr checks RFC 5322 address syntax. A *validator.Validate is safe for
// concurrent use.
var addr = validator.New()

func splitEmail(email string) (local, domain string, ok bool) {
	if err := addr.Var(email, "required,email"); err != nil {
		return "", "", false
	}
	local, domain, ok = strings.Cut(email, "@")
	return local, domain, ok
}

func emailRules(p EmailPack) []fieldRule {
	var rules []fieldRule
	for _, token := range p.PlaceholderLocalparts {
		token := strings.ToLower(token)
		rules = append(rules, fieldRule{
			Reason: "placeholder local part " + token,
			Match: func(email string) bool {
				local, _, _ := strings.Cut(email, "@")
				for _, w := range letterWords(local) {
					if w == token {
						return true
					}
				}
				return false
			},
		})
	}
	for _, d := range p.PlaceholderDomains {
		d := strings.ToLower(d)
		rules = append(rules, fieldRule{
			Reason: "placeholder domain " + strings.TrimSuffix(d, "."),
			Match: func(email string) bool {
				_, domain, _ := strings.Cut(email, "@")
				if strings.HasSuffix(d, ".") {
					return strings.HasPrefix(domain, d)
				}
				return domain == d
			},
		})
	}
	rules = append(rules, fieldRule{
		Reason: "numeric local part",
		Match: func(email string) bool {
			local, _, _ := strings.Cut(email, "@")
			digits := len(normalize.Digits(local))
			if digits < p.MinDigitsForRatio || len(local) == 0 {
				return false
			}
			return float64(digits)/float64(len(local)) > p.MaxDigitRatio
		},
	})
	return rules
}

func nameRules(p NamePack) []fieldRule {
	var rules []fieldRule
	for _, tm := range p.PlaceholderTokens {
		token := normalize.Fold(tm.Token)
		var match func(string) bool
		switch tm.Match {
		case MatchWord:
			match = func(folded string) bool {
				for _, w := range normalize.Words(folded) {
					if w == token {
						return true
					}
				}
				return false
			}
		case MatchExact:
			match = func(folded string) bool { return folded == token }
		default:
			match = func(folded string) bool { return strings.Contains(folded, token) }
		}
		rules = append(rules, fieldRule{Reason: "placeholder token " + tm.Token, Match: match})
	}

	minRepeat := p.FillerMinRepeat
	rules = append(rules, fieldRule{
		Reason: "repeated letter filler",
		Match: func(folded string) bool {
			for _, w := range normalize.Words(folded) {
				if isFiller(w, minRepeat) {
					return true
				}
			}
			return false
		},
	})
	return rules
}

// isFiller reports whether w is one letter repeated at least n times.
func isFiller(w string, n int) bool {
	first, _ := utf8.DecodeRuneInString(w)
	if !unicode.IsLetter(first) {
		return false
	}
	count := 0
	for _, r := range w {
		if r != first {
			return false
		}
		count++
	}
	return count >= n
}

// letterWords splits s into runs of letters, dropping digits and punctuation.
func letterWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}
