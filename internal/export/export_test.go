package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgate/internal/model"
)

func TestWorkbook_LeadsAndLedger(t *testing.T) {
	created := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	audited := created.Add(48 * time.Hour)

	leads := []model.PersistedLead{
		{
			ID:              "lead-1",
			UserID:          "u1",
			NormalizedPhone: "56982745193",
			Email:           "juan@empresa.cl",
			BusinessName:    "Clínica Dental Sonrisa",
			Category:        "salud",
			Verdict:         model.ValidationVerdict{ValidPhone: true, ValidEmail: true, ValidName: true, DomainConfirmed: true},
			Status:          model.LeadStatusAccepted,
			CreditCharged:   true,
			CreatedAt:       created,
		},
		{
			ID:              "lead-2",
			UserID:          "u1",
			NormalizedPhone: "56999999999",
			BusinessName:    "Prueba",
			Verdict: model.ValidationVerdict{
				PhoneSeverity: model.SeverityCritical,
				PhoneReasons:  []string{"all digits identical"},
			},
			Status:         model.LeadStatusRejectedInvalid,
			CreditCharged:  true,
			CreditRefunded: true,
			CreatedAt:      created,
			AuditedAt:      &audited,
		},
	}
	entries := []model.LedgerEntry{
		{ID: "e1", UserID: "u1", MovementType: model.MovementGrant, Amount: 10, BalanceBefore: 0, BalanceAfter: 10, Reason: "top-up", CreatedAt: created},
		{ID: "e2", UserID: "u1", MovementType: model.MovementConsume, Amount: 1, BalanceBefore: 10, BalanceAfter: 9, LeadRef: "lead-1", Reason: "lead accepted", CreatedAt: created},
		{ID: "e3", UserID: "u1", MovementType: model.MovementConsume, Amount: 1, BalanceBefore: 9, BalanceAfter: 8, LeadRef: "lead-2", Reason: "lead accepted", CreatedAt: created},
		{ID: "e4", UserID: "u1", MovementType: model.MovementRefund, Amount: 1, BalanceBefore: 8, BalanceAfter: 9, LeadRef: "lead-2", Reason: "reaudit: all digits identical", CreatedAt: audited},
	}

	wb := NewWorkbook()
	require.NoError(t, wb.AddLeads(leads))
	require.NoError(t, wb.AddEntries(entries))
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, wb.Save(path))

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: SheetLeads})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, leadHeaders, rows[0])
	assert.Equal(t, "Clínica Dental Sonrisa", rows[1][2])
	assert.Equal(t, "+56 9 8274 5193", rows[1][3])
	assert.Equal(t, "accepted", rows[1][6])
	assert.Equal(t, "2026-03-02T15:04:05Z", rows[1][12])
	assert.Equal(t, "all digits identical", rows[2][8])
	assert.Equal(t, "CRITICAL", rows[2][7])
	assert.Equal(t, "2026-03-04T15:04:05Z", rows[2][13])

	ledger, err := ReadXLSX(path, XLSXOptions{SheetName: SheetLedger})
	require.NoError(t, err)
	require.Len(t, ledger, 5)
	assert.Equal(t, []string{"e2", "u1", "CONSUME", "1", "10", "9", "lead-1", "lead accepted", "2026-03-02T15:04:05Z"}, ledger[2])

	summary, err := ReadXLSX(path, XLSXOptions{SheetName: SheetSummary})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Type", "Total"},
		{"GRANT", "10"},
		{"CONSUME", "2"},
		{"REFUND", "1"},
	}, summary)
}

func TestWorkbook_SaveEmpty(t *testing.T) {
	err := NewWorkbook().Save(filepath.Join(t.TempDir(), "empty.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sheets")
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Bloqueados")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "blacklist.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Teléfono"}, {"+56 9 8274 5193"}})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, `sheet "Missing" not found`)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.ErrorContains(t, err, "export: open xlsx")
}

func TestBlacklistRows(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Negocio", "Teléfono", "Motivo"},
		{"Fono Falso SpA", "+56 9 1234 5678", "reclamo"},
		{"Otro", "12345", ""},
		{"Repetido", "912345678", "dup"},
		{"", "87654321", ""},
	})
	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)

	entries, skipped, err := BlacklistRows(rows, "admin")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, skipped)
	require.Len(t, entries, 2)

	assert.Equal(t, model.BlacklistEntry{
		Phone:        "56912345678",
		BusinessName: "Fono Falso SpA",
		Reason:       "reclamo",
		Source:       model.BlacklistSourceManual,
		UserID:       "admin",
	}, entries[0])
	assert.Equal(t, "56987654321", entries[1].Phone)
	assert.Equal(t, "manual import", entries[1].Reason)
}

func TestBlacklistRows_NoPhoneColumn(t *testing.T) {
	_, _, err := BlacklistRows([][]string{{"name"}, {"x"}}, "")
	assert.ErrorContains(t, err, "no phone column")

	entries, skipped, err := BlacklistRows(nil, "")
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.Nil(t, skipped)
}
