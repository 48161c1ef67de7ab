package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
)

// XLSXOptions selects the sheet ReadXLSX reads.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads an XLSX file and returns all rows as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("export: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("export: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

var (
	phoneHeaders    = []string{"phone", "telefono", "teléfono", "whatsapp", "numero", "número"}
	reasonHeaders   = []string{"reason", "motivo", "razon", "razón"}
	businessHeaders = []string{"business", "business_name", "negocio", "empresa", "name"}
)

// BlacklistRows turns a header row plus data rows into manual blacklist
// entries. Rows whose phone does not parse are returned in skipped, by
// their 1-based data row number.
func BlacklistRows(rows [][]string, userID string) (entries []model.BlacklistEntry, skipped []int, err error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header := rows[0]
	phoneCol := findHeader(header, phoneHeaders)
	if phoneCol < 0 {
		return nil, nil, eris.New("export: no phone column")
	}
	reasonCol := findHeader(header, reasonHeaders)
	businessCol := findHeader(header, businessHeaders)

	seen := make(map[string]struct{})
	for i, row := range rows[1:] {
		phone, perr := normalize.ParsePhone(at(row, phoneCol))
		if perr != nil {
			skipped = append(skipped, i+1)
			continue
		}
		if _, dup := seen[phone]; dup {
			continue
		}
		seen[phone] = struct{}{}

		reason := at(row, reasonCol)
		if reason == "" {
			reason = "manual import"
		}
		entries = append(entries, model.BlacklistEntry{
			Phone:        phone,
			BusinessName: normalize.Name(at(row, businessCol)),
			Reason:       reason,
			Source:       model.BlacklistSourceManual,
			UserID:       userID,
		})
	}
	return entries, skipped, nil
}

func findHeader(header []string, aliases []string) int {
	for _, a := range aliases {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), a) {
				return i
			}
		}
	}
	return -1
}

func at(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
