package validate

import (
	"strings"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
)

// PhoneRulesVersion identifies the phone rule table. Bump it whenever a
// rule is added, removed or reordered so stored verdicts can be traced back
// to the table that produced them.
const PhoneRulesVersion = 4

// PhoneRule is one entry in the ordered phone taxonomy. Match receives the
// 8-digit subscriber body.
type PhoneRule struct {
	Name        string
	Severity    model.Severity
	Category    string
	Description string
	Match       func(body string) bool
}

// Phone rule categories.
const (
	CategoryUnparseable = "unparseable"
	CategoryRepetition  = "repetition"
	CategorySequence    = "sequence"
	CategoryDecoy       = "decoy"
	CategoryShortRepeat = "short_repeat"
	CategorySymmetry    = "symmetry"
)

// PhoneResult is the outcome of the phone taxonomy.
type PhoneResult struct {
	Valid       bool
	Severity    model.Severity
	Rule        string
	Category    string
	Description string
}

// phoneRules builds the ordered rule table, most severe first. decoys holds
// literal bodies that are CRITICAL regardless of shape; exempt bodies are
// never full sequences.
func phoneRules(decoys, exempt map[string]struct{}) []PhoneRule {
	sequence := func(step int) func(string) bool {
		return func(body string) bool {
			if _, ok := exempt[body]; ok {
				return false
			}
			return stepRun(body, step) == len(body)
		}
	}
	return []PhoneRule{
		// CRITICAL
		{"all_zero", model.SeverityCritical, CategoryRepetition, "all digits zero", allZero},
		{"all_identical", model.SeverityCritical, CategoryRepetition, "all digits identical", allIdentical},
		{"full_ascending", model.SeverityCritical, CategorySequence, "full ascending sequence", sequence(1)},
		{"full_descending", model.SeverityCritical, CategorySequence, "full descending sequence", sequence(-1)},
		{"known_decoy", model.SeverityCritical, CategoryDecoy, "known decoy number", func(body string) bool {
			_, ok := decoys[body]
			return ok
		}},
		{"paired_runs", model.SeverityCritical, CategoryDecoy, "paired digit runs", pairedRuns},
		{"repeat_xy", model.SeverityCritical, CategoryShortRepeat, "two-digit pattern repeated", periodic(2)},
		{"repeat_half", model.SeverityCritical, CategoryShortRepeat, "four-digit pattern repeated", periodic(4)},
		{"two_blocks", model.SeverityCritical, CategoryShortRepeat, "two blocks of repeated digits", twoBlocks},
		{"palindrome", model.SeverityCritical, CategorySymmetry, "palindromic number", palindrome},

		// HIGH
		{"run_of_7", model.SeverityHigh, CategoryRepetition, "7 or more identical digits", maxRunAtLeast(7)},
		{"long_sequence", model.SeverityHigh, CategorySequence, "long ascending or descending run", longestStep(7)},
		{"pair_x4", model.SeverityHigh, CategoryShortRepeat, "two-digit group repeated 4 times", pairRepeated(4)},

		// MEDIUM
		{"run_of_5", model.SeverityMedium, CategoryRepetition, "5 or more identical digits", maxRunAtLeast(5)},
		{"triple_repeat", model.SeverityMedium, CategoryShortRepeat, "short sequence repeated 3 times", tripleRepeat},

		// LOW
		{"edge_run_of_4", model.SeverityLow, CategoryRepetition, "4 identical digits at start or end", edgeRun(4)},
		{"ascending_6", model.SeverityLow, CategorySequence, "6-digit ascending run", ascendingRun(6)},
	}
}

// CheckPhone runs the rule table against a normalized phone. An empty or
// malformed phone is CRITICAL without consulting the table. The first
// matching rule wins.
func (v *Validator) CheckPhone(normalized string) PhoneResult {
	body := normalize.Body(normalized)
	if body == "" {
		return PhoneResult{
			Severity:    model.SeverityCritical,
			Rule:        "unparseable",
			Category:    CategoryUnparseable,
			Description: "unparseable phone number",
		}
	}

	for _, r := range v.phone {
		if r.Match(body) {
			return PhoneResult{
				Valid:       r.Severity < model.SeverityCritical,
				Severity:    r.Severity,
				Rule:        r.Name,
				Category:    r.Category,
				Description: r.Description,
			}
		}
	}
	return PhoneResult{Valid: true, Severity: model.SeverityNone}
}

func allZero(body string) bool {
	return strings.Trim(body, "0") == ""
}

func allIdentical(body string) bool {
	return strings.Count(body, body[:1]) == len(body)
}

// pairedRuns matches aabbccdd where consecutive pairs differ.
func pairedRuns(body string) bool {
	if len(body)%2 != 0 {
		return false
	}
	for i := 0; i < len(body); i += 2 {
		if body[i] != body[i+1] {
			return false
		}
		if i > 0 && body[i] == body[i-2] {
			return false
		}
	}
	return true
}

func periodic(period int) func(string) bool {
	return func(body string) bool {
		if len(body)%period != 0 || len(body) == period {
			return false
		}
		unit := body[:period]
		return strings.Repeat(unit, len(body)/period) == body
	}
}

// twoBlocks matches XXXYYYYY style bodies: exactly two runs, each at least 3 long.
func twoBlocks(body string) bool {
	runs := runLengths(body)
	return len(runs) == 2 && runs[0] >= 3 && runs[1] >= 3
}

func palindrome(body string) bool {
	for i, j := 0, len(body)-1; i < j; i, j = i+1, j-1 {
		if body[i] != body[j] {
			return false
		}
	}
	return true
}

func maxRunAtLeast(n int) func(string) bool {
	return func(body string) bool {
		for _, l := range runLengths(body) {
			if l >= n {
				return true
			}
		}
		return false
	}
}

// longestStep matches a run of n or more digits each one above or below the last.
func longestStep(n int) func(string) bool {
	return func(body string) bool {
		return stepRun(body, 1) >= n || stepRun(body, -1) >= n
	}
}

func ascendingRun(n int) func(string) bool {
	return func(body string) bool {
		return stepRun(body, 1) >= n
	}
}

func stepRun(s string, step int) int {
	best, cur := 1, 1
	for i := 1; i < len(s); i++ {
		if int(s[i])-int(s[i-1]) == step {
			cur++
			if cur > best {
				best = cur
			}
			continue
		}
		cur = 1
	}
	return best
}

// pairRepeated counts occurrences of each distinct-digit pair across the
// national number, overlapping windows included.
func pairRepeated(n int) func(string) bool {
	return func(body string) bool {
		s := normalize.MobilePrefix + body
		counts := make(map[string]int)
		for i := 0; i+2 <= len(s); i++ {
			pair := s[i : i+2]
			if pair[0] == pair[1] {
				continue
			}
			counts[pair]++
			if counts[pair] >= n {
				return true
			}
		}
		return false
	}
}

// tripleRepeat matches XYXYXY anywhere in the body.
func tripleRepeat(body string) bool {
	for i := 0; i+6 <= len(body); i++ {
		unit := body[i : i+2]
		if unit[0] != unit[1] && body[i:i+6] == strings.Repeat(unit, 3) {
			return true
		}
	}
	return false
}

func edgeRun(n int) func(string) bool {
	return func(body string) bool {
		runs := runLengths(body)
		return runs[0] >= n || runs[len(runs)-1] >= n
	}
}

func runLengths(s string) []int {
	if s == "" {
		return []int{0}
	}
	runs := []int{1}
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			runs[len(runs)-1]++
			continue
		}
		runs = append(runs, 1)
	}
	return runs
}
