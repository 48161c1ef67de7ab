package validate

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Token match modes for name placeholder rules.
const (
	MatchWord      = "word"
	MatchSubstring = "substring"
	MatchExact     = "exact"
)

// Pack is the versioned placeholder rule data for emails and names.
type Pack struct {
	Version int       `yaml:"version"`
	Phone   PhonePack `yaml:"phone"`
	Email   EmailPack `yaml:"email"`
	Name    NamePack  `yaml:"name"`
}

// PhonePack holds data consumed by the phone rule table.
type PhonePack struct {
	Decoys []string `yaml:"decoys"`
	// SequenceExempt bodies skip the full ascending and descending rules
	// and fall through to the partial-run rules.
	SequenceExempt []string `yaml:"sequence_exempt"`
}

// EmailPack configures placeholder email detection.
type EmailPack struct {
	PlaceholderLocalparts []string `yaml:"placeholder_localparts"`
	PlaceholderDomains    []string `yaml:"placeholder_domains"`
	MaxDigitRatio         float64  `yaml:"max_digit_ratio"`
	MinDigitsForRatio     int      `yaml:"min_digits_for_ratio"`
}

// NamePack configures placeholder name detection.
type NamePack struct {
	MinLength         int          `yaml:"min_length"`
	FillerMinRepeat   int          `yaml:"filler_min_repeat"`
	PlaceholderTokens []TokenMatch `yaml:"placeholder_tokens"`
}

// TokenMatch is a placeholder token and how it must appear in a name.
type TokenMatch struct {
	Token string `yaml:"token"`
	Match string `yaml:"match"`
}

// DefaultPack returns the embedded rule pack.
func DefaultPack() (*Pack, error) {
	return ParsePack(defaultRules)
}

// LoadPack reads a rule pack from path. An empty path loads the embedded default.
func LoadPack(path string) (*Pack, error) {
	if path == "" {
		return DefaultPack()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: read rules %s", path)
	}
	return ParsePack(data)
}

// ParsePack decodes and checks a YAML rule pack.
func ParsePack(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "validate: parse rules")
	}
	if p.Version <= 0 {
		return nil, eris.New("validate: rules pack missing version")
	}
	for _, tm := range p.Name.PlaceholderTokens {
		switch tm.Match {
		case MatchWord, MatchSubstring, MatchExact:
		default:
			return nil, eris.Errorf("validate: token %q has unknown match mode %q", tm.Token, tm.Match)
		}
	}
	if p.Name.MinLength <= 0 {
		p.Name.MinLength = 2
	}
	if p.Name.FillerMinRepeat <= 0 {
		p.Name.FillerMinRepeat = 3
	}
	if p.Email.MaxDigitRatio <= 0 {
		p.Email.MaxDigitRatio = 0.5
	}
	return &p, nil
}
