package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgate/internal/model"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewDefault()
	require.NoError(t, err)
	return v
}

func TestCheckPhone_Taxonomy(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		body     string
		rule     string
		severity model.Severity
	}{
		{"00000000", "all_zero", model.SeverityCritical},
		{"99999999", "all_identical", model.SeverityCritical},
		{"87654321", "full_descending", model.SeverityCritical},
		{"01234567", "full_ascending", model.SeverityCritical},
		{"23456789", "full_ascending", model.SeverityCritical},
		{"76543210", "full_descending", model.SeverityCritical},
		{"98765432", "full_descending", model.SeverityCritical},
		{"13579135", "known_decoy", model.SeverityCritical},
		{"11223344", "paired_runs", model.SeverityCritical},
		{"45454545", "repeat_xy", model.SeverityCritical},
		{"52865286", "repeat_half", model.SeverityCritical},
		{"11155555", "two_blocks", model.SeverityCritical},
		{"33338888", "two_blocks", model.SeverityCritical},
		{"27188172", "palindrome", model.SeverityCritical},
		{"77777772", "run_of_7", model.SeverityHigh},
		{"12345678", "long_sequence", model.SeverityHigh},
		{"23456781", "long_sequence", model.SeverityHigh},
		{"98765431", "long_sequence", model.SeverityHigh},
		{"19191912", "pair_x4", model.SeverityHigh},
		{"38555552", "run_of_5", model.SeverityMedium},
		{"27373738", "triple_repeat", model.SeverityMedium},
		{"44449271", "edge_run_of_4", model.SeverityLow},
		{"28160000", "edge_run_of_4", model.SeverityLow},
		{"81234569", "ascending_6", model.SeverityLow},
		{"82745193", "", model.SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			res := v.CheckPhone("569" + tt.body)
			assert.Equal(t, tt.rule, res.Rule)
			assert.Equal(t, tt.severity, res.Severity)
			assert.Equal(t, tt.severity != model.SeverityCritical, res.Valid)
		})
	}
}

func TestCheckPhone_Unparseable(t *testing.T) {
	v := newTestValidator(t)
	for _, phone := range []string{"", "12345", "56212345678"} {
		res := v.CheckPhone(phone)
		assert.False(t, res.Valid)
		assert.Equal(t, model.SeverityCritical, res.Severity)
		assert.Equal(t, CategoryUnparseable, res.Category)
	}
}

func TestCheckPhone_CriticalNeverValid(t *testing.T) {
	v := newTestValidator(t)
	rules := v.PhoneRules()
	for n := 0; n < 100000000; n += 7919 {
		body := fmt.Sprintf("%08d", n)
		critical := false
		for _, r := range rules {
			if r.Severity == model.SeverityCritical && r.Match(body) {
				critical = true
				break
			}
		}
		res := v.CheckPhone("569" + body)
		if critical {
			assert.Equal(t, model.SeverityCritical, res.Severity, "body %s", body)
			assert.False(t, res.Valid, "body %s", body)
		} else {
			assert.True(t, res.Valid, "body %s", body)
		}
	}
}

func TestCheckPhone_FirstMatchWins(t *testing.T) {
	v := newTestValidator(t)
	// 99999999 matches all_identical, palindrome, repeat_xy and run_of_7.
	res := v.CheckPhone("56999999999")
	assert.Equal(t, "all_identical", res.Rule)
	assert.Equal(t, "all digits identical", res.Description)
}

func TestPhoneRules_OrderedBySeverity(t *testing.T) {
	v := newTestValidator(t)
	rules := v.PhoneRules()
	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i].Severity, rules[i-1].Severity, "rule %s", rules[i].Name)
	}
}

func TestCheckEmail(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		email  string
		valid  bool
		domain string
		reason string
	}{
		{"juan@empresa.cl", true, "empresa.cl", ""},
		{"ventas@clinicasonrisa.cl", true, "clinicasonrisa.cl", ""},
		{"test@empresa.cl", false, "", "placeholder local part test"},
		{"ejemplo123@gmail.com", false, "", "placeholder local part ejemplo"},
		{"juan@example.com", false, "", "placeholder domain example"},
		{"maria@ejemplo.cl", false, "", "placeholder domain ejemplo"},
		{"98765432@gmail.com", false, "", "numeric local part"},
		{"", false, "", "missing email"},
		{"not-an-email", false, "", "malformed email"},
		{"a@b@c.cl", false, "", "malformed email"},
		{"juan@localhost", false, "", "malformed email"},
		{"juan@empresa..cl", false, "", "malformed email"},
		{"<juan>@empresa.cl", false, "", "malformed email"},
		{"juan@-empresa.cl", false, "", "malformed email"},
		{"juan @empresa.cl", false, "", "malformed email"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			res := v.CheckEmail(tt.email)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.domain, res.Domain)
			if tt.reason != "" {
				assert.Contains(t, res.Reasons, tt.reason)
			} else {
				assert.Empty(t, res.Reasons)
			}
		})
	}
}

func TestCheckEmail_ContestIsNotTest(t *testing.T) {
	v := newTestValidator(t)
	assert.True(t, v.CheckEmail("contest@premios.cl").Valid)
}

func TestCheckName(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name   string
		valid  bool
		reason string
	}{
		{"Clínica Dental Sonrisa", true, ""},
		{"Demoliciones Pérez", true, ""},
		{"Empresa de Prueba", false, "placeholder token prueba"},
		{"PRUÉBA SpA", false, "placeholder token prueba"},
		{"Test Ltda", false, "placeholder token test"},
		{"Demo", false, "placeholder token demo"},
		{"Negocio Ejemplo", false, "placeholder token ejemplo"},
		{"aaaa", false, "repeated letter filler"},
		{"Comercial XXX", false, "repeated letter filler"},
		{"N/A", false, "placeholder token n/a"},
		{"A", false, "name too short"},
		{"   ", false, "missing name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.CheckName(tt.name)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.reason != "" {
				assert.Contains(t, res.Reasons, tt.reason)
			}
		})
	}
}

func TestParsePack_Errors(t *testing.T) {
	_, err := ParsePack([]byte("email: {}\n"))
	assert.Error(t, err, "missing version")

	_, err = ParsePack([]byte("version: 1\nname:\n  placeholder_tokens:\n    - token: x\n      match: fuzzy\n"))
	assert.Error(t, err, "unknown match mode")

	_, err = ParsePack([]byte("version: [\n"))
	assert.Error(t, err)
}

func TestLoadPack_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := `version: 9
name:
  placeholder_tokens:
    - token: acme
      match: word
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	p, err := LoadPack(path)
	require.NoError(t, err)
	assert.Equal(t, 9, p.Version)
	assert.Equal(t, 2, p.Name.MinLength)

	v := New(p)
	assert.Equal(t, "phone-v4/pack-v9", v.Version())
	assert.False(t, v.CheckName("Acme Corp").Valid)
	assert.True(t, v.CheckName("Empresa de Prueba").Valid)

	// The override carries no exemptions, so every full sequence is critical.
	res := v.CheckPhone("56912345678")
	assert.Equal(t, "full_ascending", res.Rule)
	assert.False(t, res.Valid)
}

func TestCheckPhone_SequenceExempt(t *testing.T) {
	v := New(&Pack{Version: 1, Phone: PhonePack{SequenceExempt: []string{"2345 6789"}}})

	res := v.CheckPhone("56923456789")
	assert.Equal(t, "long_sequence", res.Rule)
	assert.Equal(t, model.SeverityHigh, res.Severity)
	assert.True(t, res.Valid)

	assert.Equal(t, "full_ascending", v.CheckPhone("56912345678").Rule)
}

func TestLoadPack_MissingFile(t *testing.T) {
	_, err := LoadPack(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadPack_EmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPack("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Email.PlaceholderDomains)
}
