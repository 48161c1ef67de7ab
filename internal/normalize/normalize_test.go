package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+56 9 1234 5678", "56912345678"},
		{"+56912345678", "56912345678"},
		{"56912345678", "56912345678"},
		{"912345678", "56912345678"},
		{"12345678", "56912345678"},
		{"(+56) 9-1234-5678", "56912345678"},
		{"+56 2 2345 6789", ""}, // landline
		{"812345678", ""},       // 9 digits without mobile prefix
		{"1234567", ""},
		{"", ""},
		{"not a phone", ""},
		{"+1 415 555 0100", ""},
		{"5691234567890", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.raw))
		})
	}
}

func TestPhone_Idempotent(t *testing.T) {
	inputs := []string{
		"+56 9 1234 5678", "912345678", "12345678", "00000000", "+56999999999",
		"garbage", "", "5691234", "+44 20 7946 0958", "9 8765 4321",
	}
	for _, in := range inputs {
		once := Phone(in)
		assert.Equal(t, once, Phone(once), "input %q", in)
	}
}

func TestParsePhone(t *testing.T) {
	p, err := ParsePhone("9 8765 4321")
	require.NoError(t, err)
	assert.Equal(t, "56987654321", p)

	_, err = ParsePhone("+56 2 2345 6789")
	assert.ErrorIs(t, err, ErrUnparseablePhone)
}

func TestBodyAndDisplay(t *testing.T) {
	assert.Equal(t, "12345678", Body("56912345678"))
	assert.Equal(t, "", Body("12345678"))
	assert.Equal(t, "+56 9 1234 5678", Display("56912345678"))
	assert.Equal(t, "bogus", Display("bogus"))
}

func TestEmailAndName(t *testing.T) {
	assert.Equal(t, "juan@empresa.cl", Email("  Juan@Empresa.CL "))
	assert.Equal(t, "Clínica Dental Sonrisa", Name("  Clínica   Dental\tSonrisa "))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "clinica dental", Fold("Clínica DENTAL"))
	assert.Equal(t, "prueba", Fold("PRUÉBA"))
	assert.Equal(t, "nandu", Fold("Ñandú"))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"ferreteria", "el", "clavo"}, Words("ferreteria el-clavo!"))
}

func TestRecord_KeyVariants(t *testing.T) {
	c := Record(map[string]any{
		"Negocio":  "Panadería  La Espiga",
		"Nombre":   "María Pérez",
		"WhatsApp": "+56 9 8765 4321",
		"Email":    "contacto@laespiga.cl",
		"Rubro":    "Panadería",
		"URL":      "laespiga.cl",
	})
	assert.Equal(t, "Panadería La Espiga", c.Name)
	assert.Equal(t, "María Pérez", c.Contact)
	assert.Equal(t, "+56 9 8765 4321", c.Phone)
	assert.Equal(t, "contacto@laespiga.cl", c.Email)
	assert.Equal(t, "Panadería", c.BusinessCategory)
	assert.Equal(t, "laespiga.cl", c.Website)
}

func TestRecord_NumericPhoneAndFallbackName(t *testing.T) {
	c := Record(map[string]any{
		"nombre":   "Taller Mecánico Ruiz",
		"telefono": float64(56987654321),
	})
	assert.Equal(t, "Taller Mecánico Ruiz", c.Name)
	assert.Equal(t, "56987654321", c.Phone)
}

func TestRecord_Empty(t *testing.T) {
	c := Record(map[string]any{"irrelevant": true, "email": nil})
	assert.Empty(t, c.Name)
	assert.Empty(t, c.Email)
}
