package ingest

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/eshaffer321/bankrecon/internal/domain/labels"
)

// headerScanRows bounds how far down the header row is looked for; bank
// exports often start with account details.
const headerScanRows = 20

// Columns holds the detected column indexes, -1 when absent.
type Columns struct {
	Date    int `json:"date"`
	Label   int `json:"label"`
	Amount  int `json:"amount"`
	Debit   int `json:"debit"`
	Credit  int `json:"credit"`
	Balance int `json:"balance"`
}

func (c Columns) usable() bool {
	return c.Date >= 0 && (c.Amount >= 0 || c.Debit >= 0 || c.Credit >= 0)
}

// foldHeader lowercases and strips accents: "Libellé" -> "libelle".
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// detectColumns maps header cells to fields. The first matching column
// wins, except that an operation date beats a value date and a "libellé"
// beats a generic "opération" column.
func detectColumns(header []string) Columns {
	c := Columns{Date: -1, Label: -1, Amount: -1, Debit: -1, Credit: -1, Balance: -1}
	valueDate, weakLabel := -1, -1

	set := func(field *int, i int) {
		if *field < 0 {
			*field = i
		}
	}

	for i, cell := range header {
		h := foldHeader(cell)
		switch {
		case h == "":
		case strings.Contains(h, "debit") && !strings.Contains(h, "credit"):
			set(&c.Debit, i)
		case strings.Contains(h, "credit") && !strings.Contains(h, "debit"):
			set(&c.Credit, i)
		case strings.Contains(h, "date"):
			if containsAny(h, "valeur", "value") {
				set(&valueDate, i)
			} else {
				set(&c.Date, i)
			}
		case containsAny(h, "libelle", "label", "description", "intitule"):
			set(&c.Label, i)
		case containsAny(h, "operation", "details"):
			set(&weakLabel, i)
		case containsAny(h, "solde", "balance"):
			set(&c.Balance, i)
		case containsAny(h, "montant", "amount"):
			set(&c.Amount, i)
		}
	}
	if c.Date < 0 {
		c.Date = valueDate
	}
	if c.Label < 0 {
		c.Label = weakLabel
	}
	return c
}

// fromRecords finds the header, then converts every data row. serialDates
// allows spreadsheet date serials.
func fromRecords(records [][]string, serialDates bool) (*Statement, error) {
	headerAt := -1
	var cols Columns
	for i := 0; i < len(records) && i < headerScanRows; i++ {
		if c := detectColumns(records[i]); c.usable() {
			headerAt, cols = i, c
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrNoHeader
	}

	header := records[headerAt]
	st := &Statement{Columns: cols, Rows: make([]Row, 0, len(records)-headerAt-1)}

	for i := headerAt + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		row, ok := convertRow(rec, header, cols, serialDates)
		if !ok {
			st.Skipped++
			continue
		}
		row.Line = i + 1
		st.Rows = append(st.Rows, row)
	}
	return st, nil
}

func convertRow(rec, header []string, cols Columns, serialDates bool) (Row, bool) {
	date, ok := parseDate(cell(rec, cols.Date), serialDates)
	if !ok {
		return Row{}, false
	}

	amount, ok := rowAmount(rec, cols)
	if !ok {
		return Row{}, false
	}

	label := strings.Join(strings.Fields(cell(rec, cols.Label)), " ")
	row := Row{
		Date:   date,
		Label:  label,
		Amount: amount,
		Raw:    rawCells(rec, header),
	}
	if ref, ok := labels.InvoiceReference(label); ok {
		row.InvoiceRef = ref
	}
	if bal, ok := parseAmount(cell(rec, cols.Balance)); ok {
		row.Balance = &bal
	}
	return row, true
}

// rowAmount reads the signed amount. A single amount column is taken as
// signed; otherwise a credit is positive and a debit negative whatever its
// sign in the file. Zero amounts are rejected.
func rowAmount(rec []string, cols Columns) (decimal.Decimal, bool) {
	if cols.Amount >= 0 {
		if v, ok := parseAmount(cell(rec, cols.Amount)); ok && !v.IsZero() {
			return v, true
		}
	}
	if v, ok := parseAmount(cell(rec, cols.Credit)); ok && v.IsPositive() {
		return v, true
	}
	if v, ok := parseAmount(cell(rec, cols.Debit)); ok && !v.IsZero() {
		return v.Abs().Neg(), true
	}
	return decimal.Zero, false
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rawCells(rec, header []string) map[string]string {
	raw := make(map[string]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if v := cell(rec, i); v != "" {
			raw[h] = v
		}
	}
	return raw
}
