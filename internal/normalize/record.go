package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/leadgate/internal/model"
)

// Key aliases for raw lead records. LLM output uses inconsistent casing and
// both Spanish and English names, so lookups are case-insensitive and the
// first alias present wins.
var (
	nameKeys     = []string{"negocio", "business_name", "business", "empresa", "name"}
	contactKeys  = []string{"nombre", "contacto", "contact", "contact_name"}
	phoneKeys    = []string{"whatsapp", "telefono", "teléfono", "phone", "celular", "movil"}
	emailKeys    = []string{"email", "correo", "e-mail", "mail"}
	categoryKeys = []string{"rubro", "categoria", "category", "business_category"}
	websiteKeys  = []string{"url", "dominio_sugerido", "dominio", "website", "sitio_web"}
	cityKeys     = []string{"ciudad", "city", "comuna"}
)

// Record maps a loosely-typed lead record onto a CandidateLead. Values are
// trimmed; numbers are rendered without exponent so phone numbers emitted as
// JSON numbers survive.
func Record(raw map[string]any) model.CandidateLead {
	lower := make(map[string]any, len(raw))
	for k, v := range raw {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}

	c := model.CandidateLead{
		Name:             Name(lookup(lower, nameKeys)),
		Contact:          Name(lookup(lower, contactKeys)),
		Phone:            strings.TrimSpace(lookup(lower, phoneKeys)),
		Email:            strings.TrimSpace(lookup(lower, emailKeys)),
		BusinessCategory: strings.TrimSpace(lookup(lower, categoryKeys)),
		Website:          strings.TrimSpace(lookup(lower, websiteKeys)),
		City:             strings.TrimSpace(lookup(lower, cityKeys)),
	}

	// Records carrying only a person's name use it as the business name.
	if c.Name == "" {
		c.Name = c.Contact
	}
	return c
}

func lookup(m map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
