package notion

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"unicode"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// CSVMapper maps a CSV row to a flat key-value map using the header row.
type CSVMapper struct{}

// MapRow pairs each header with the corresponding value in the row.
// If the row has fewer columns than headers, missing values become empty strings.
func (m CSVMapper) MapRow(headers []string, row []string) map[string]string {
	result := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			result[h] = row[i]
		} else {
			result[h] = ""
		}
	}
	return result
}

// Column aliases recognised in lead CSV exports.
var (
	nameColumns  = []string{"name", "negocio", "business_name", "empresa"}
	phoneColumns = []string{"whatsapp", "phone", "telefono", "teléfono", "celular"}
	emailColumns = []string{"email", "correo", "e-mail"}
	urlColumns   = []string{"url", "website", "dominio", "domain", "sitio_web"}
)

// columnIndex returns the index of the first header matching one of
// aliases, in alias order, or -1.
func columnIndex(headers []string, aliases []string) int {
	for _, a := range aliases {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), a) {
				return i
			}
		}
	}
	return -1
}

// ImportLeadsCSV reads a lead CSV and queues one Notion page per unique
// phone number for userID. Rows without a phone are skipped; duplicates are
// detected on the phone's digits. Returns the number of pages created.
func ImportLeadsCSV(ctx context.Context, c Client, dbID, csvPath, userID string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, eris.Wrapf(err, "notion: open csv %s", csvPath)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return 0, eris.Wrap(err, "notion: read csv")
	}

	if len(records) < 2 {
		return 0, nil // header only or empty
	}

	headers := records[0]
	cols := leadColumns{
		name:  columnIndex(headers, nameColumns),
		phone: columnIndex(headers, phoneColumns),
		email: columnIndex(headers, emailColumns),
		url:   columnIndex(headers, urlColumns),
	}
	if cols.phone < 0 {
		return 0, eris.New("notion: csv has no phone column")
	}

	mapper := CSVMapper{}
	seen := make(map[string]struct{})
	created := 0

	for _, row := range records[1:] {
		if ctx.Err() != nil {
			return created, eris.Wrap(ctx.Err(), "notion: import csv cancelled")
		}

		key := digits(cell(row, cols.phone))
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: buildLeadProperties(headers, cols, mapper.MapRow(headers, row), userID),
		}

		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, eris.Wrap(err, "notion: create page from csv row")
		}
		created++
	}

	return created, nil
}

type leadColumns struct {
	name, phone, email, url int
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// buildLeadProperties converts a lead CSV row to queue page properties.
// The name column becomes the title, phone/email/url get their typed
// properties, Status is always Queued, and every other non-empty column
// passes through as rich_text under its own header.
func buildLeadProperties(headers []string, cols leadColumns, row map[string]string, userID string) notionapi.Properties {
	props := make(notionapi.Properties)
	handled := map[string]bool{}

	if cols.name >= 0 {
		h := headers[cols.name]
		name := strings.Trim(strings.TrimSpace(row[h]), "\"")
		props[PropName] = notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: name}},
			},
		}
		handled[h] = true
	}

	h := headers[cols.phone]
	props["Phone"] = notionapi.PhoneNumberProperty{
		Type:        notionapi.PropertyTypePhoneNumber,
		PhoneNumber: strings.TrimSpace(row[h]),
	}
	handled[h] = true

	if cols.email >= 0 {
		h := headers[cols.email]
		if v := strings.TrimSpace(row[h]); v != "" {
			props["Email"] = notionapi.EmailProperty{
				Type:  notionapi.PropertyTypeEmail,
				Email: v,
			}
		}
		handled[h] = true
	}

	if cols.url >= 0 {
		h := headers[cols.url]
		if v := normalizeURL(row[h]); v != "" {
			props["URL"] = notionapi.URLProperty{
				Type: notionapi.PropertyTypeURL,
				URL:  v,
			}
		}
		handled[h] = true
	}

	props[PropStatus] = notionapi.StatusProperty{
		Status: notionapi.Status{Name: StatusQueued},
	}
	if userID != "" {
		props[PropUser] = richText(userID)
	}

	for k, v := range row {
		if handled[k] || strings.TrimSpace(v) == "" {
			continue
		}
		props[k] = richText(strings.TrimSpace(v))
	}

	return props
}

// normalizeURL ensures a domain has an https:// scheme prefix.
func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		return "https://" + domain
	}
	return domain
}
