// Package export writes leads and ledger history to XLSX workbooks and
// reads phone lists back from them.
package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgate/internal/model"
	"github.com/sells-group/leadgate/internal/normalize"
)

// Sheet names written by this package.
const (
	SheetLeads   = "Leads"
	SheetLedger  = "Ledger"
	SheetSummary = "Summary"
)

var leadHeaders = []string{
	"ID", "User", "Business", "WhatsApp", "Email", "Category", "Status",
	"Phone Severity", "Reason", "Domain Confirmed", "Charged", "Refunded",
	"Created", "Audited",
}

var entryHeaders = []string{
	"ID", "User", "Type", "Amount", "Before", "After", "Lead", "Reason", "Created",
}

// Workbook collects the sheets of one export.
type Workbook struct {
	f *xlsx.File
}

// NewWorkbook creates an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{f: xlsx.NewFile()}
}

// AddLeads writes a Leads sheet.
func (w *Workbook) AddLeads(leads []model.PersistedLead) error {
	sheet, err := w.sheet(SheetLeads, leadHeaders)
	if err != nil {
		return err
	}
	for i := range leads {
		l := &leads[i]
		row := sheet.AddRow()
		addStrings(row, l.ID, l.UserID, l.BusinessName, normalize.Display(l.NormalizedPhone),
			l.Email, l.Category, string(l.Status), l.Verdict.PhoneSeverity.String(),
			reason(l))
		row.AddCell().SetBool(l.Verdict.DomainConfirmed)
		row.AddCell().SetBool(l.CreditCharged)
		row.AddCell().SetBool(l.CreditRefunded)
		addTime(row, l.CreatedAt)
		if l.AuditedAt != nil {
			addTime(row, *l.AuditedAt)
		} else {
			row.AddCell()
		}
	}
	return nil
}

// AddEntries writes a Ledger sheet and a Summary sheet with per-type
// totals.
func (w *Workbook) AddEntries(entries []model.LedgerEntry) error {
	sheet, err := w.sheet(SheetLedger, entryHeaders)
	if err != nil {
		return err
	}
	totals := map[model.MovementType]int64{}
	for i := range entries {
		e := &entries[i]
		row := sheet.AddRow()
		addStrings(row, e.ID, e.UserID, string(e.MovementType))
		row.AddCell().SetInt64(e.Amount)
		row.AddCell().SetInt64(e.BalanceBefore)
		row.AddCell().SetInt64(e.BalanceAfter)
		addStrings(row, e.LeadRef, e.Reason)
		addTime(row, e.CreatedAt)
		totals[e.MovementType] += e.Amount
	}

	summary, err := w.sheet(SheetSummary, []string{"Type", "Total"})
	if err != nil {
		return err
	}
	for _, mt := range []model.MovementType{model.MovementGrant, model.MovementConsume, model.MovementRefund} {
		row := summary.AddRow()
		addStrings(row, string(mt))
		row.AddCell().SetInt64(totals[mt])
	}
	return nil
}

// Save writes the workbook to path.
func (w *Workbook) Save(path string) error {
	if len(w.f.Sheets) == 0 {
		return eris.New("export: workbook has no sheets")
	}
	if err := w.f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func (w *Workbook) sheet(name string, headers []string) (*xlsx.Sheet, error) {
	sheet, err := w.f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", name)
	}
	header := sheet.AddRow()
	for _, h := range headers {
		cell := header.AddCell()
		cell.SetString(h)
		cell.GetStyle().Font.Bold = true
	}
	return sheet, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addTime(row *xlsx.Row, t time.Time) {
	row.AddCell().SetString(t.UTC().Format(time.RFC3339))
}

func reason(l *model.PersistedLead) string {
	if l.Status == model.LeadStatusAccepted {
		if len(l.Verdict.PhoneReasons) > 0 {
			return l.Verdict.PhoneReasons[0]
		}
		return ""
	}
	return l.Verdict.RejectionReason()
}
