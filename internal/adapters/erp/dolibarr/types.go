package dolibarr

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

// Dolibarr encodes numbers as JSON strings, numbers or null depending on
// the endpoint and version. The types below decode all three and fall back
// to zero on anything else.

// Number is a lenient decimal. Set is false when the field was null or "".
type Number struct {
	decimal.Decimal
	Set bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	s, ok := scalar(b)
	if !ok {
		*n = Number{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*n = Number{}
		return nil
	}
	*n = Number{Decimal: d, Set: true}
	return nil
}

// ID is a lenient integer identifier.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s, ok := scalar(b)
	if !ok {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// "12.0" style
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			*id = 0
			return nil
		}
		v = int64(f)
	}
	*id = ID(v)
	return nil
}

// Timestamp is a Unix-seconds date. Zero when absent.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s, ok := scalar(b)
	if !ok {
		t.Time = time.Time{}
		return nil
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec == 0 {
		t.Time = time.Time{}
		return nil
	}
	t.Time = time.Unix(sec, 0).UTC()
	return nil
}

// Ptr returns nil for a zero timestamp
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// scalar unwraps a JSON string or number. ok is false for null, "", objects
// and arrays.
func scalar(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	if b[0] == '{' || b[0] == '[' {
		return "", false
	}
	return string(b), true
}

// Invoice statuses accepted by ListInvoices
const (
	StatusUnpaid = "unpaid"
	StatusPaid   = "paid"
	StatusAll    = ""
)

// Dolibarr's numeric invoice states
const (
	stateValidated = 1
	statePaid      = 2
)

type invoiceJSON struct {
	ID             ID              `json:"id"`
	Ref            string          `json:"ref"`
	RefSupplier    string          `json:"ref_supplier"`
	RefClient      string          `json:"ref_client"`
	RefExt         string          `json:"ref_ext"`
	TotalHT        Number          `json:"total_ht"`
	TotalTTC       Number          `json:"total_ttc"`
	RemainToPay    Number          `json:"remaintopay"`
	SocID          ID              `json:"socid"`
	FkSoc          ID              `json:"fk_soc"`
	Thirdparty     json.RawMessage `json:"thirdparty"`
	ThirdpartyName string          `json:"thirdparty_name"`
	SocName        string          `json:"socname"`
	DueDate        Timestamp       `json:"date_lim_reglement"`
	Status         ID              `json:"status"`
	Paye           ID              `json:"paye"`
}

func (j invoiceJSON) partyID() int64 {
	if j.SocID != 0 {
		return int64(j.SocID)
	}
	return int64(j.FkSoc)
}

func (j invoiceJSON) partyName() string {
	if len(j.Thirdparty) > 0 && j.Thirdparty[0] == '{' {
		var tp struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(j.Thirdparty, &tp) == nil && tp.Name != "" {
			return tp.Name
		}
	}
	if j.ThirdpartyName != "" {
		return j.ThirdpartyName
	}
	return j.SocName
}

func (j invoiceJSON) paid() bool {
	return j.Paye == 1 || j.Status == statePaid
}

func (j invoiceJSON) unpaid() bool {
	return j.Status == stateValidated || j.Paye == 0
}

func (j invoiceJSON) toInvoice(kind matcher.InvoiceKind) matcher.Invoice {
	inv := matcher.Invoice{
		ID:          int64(j.ID),
		Kind:        kind,
		Ref:         j.Ref,
		RefSupplier: j.RefSupplier,
		RefExt:      j.RefExt,
		TotalHT:     j.TotalHT.Decimal,
		TotalTTC:    j.TotalTTC.Decimal,
		PartyID:     j.partyID(),
		PartyName:   j.partyName(),
		DueDate:     j.DueDate.Ptr(),
		Paid:        j.paid(),
	}
	if inv.RefExt == "" {
		inv.RefExt = j.RefClient
	}
	if j.RemainToPay.Set {
		r := j.RemainToPay.Decimal
		inv.RemainToPay = &r
	}
	return inv
}

// Party is a Dolibarr third party (customer and/or supplier).
type Party struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Alias      string `json:"name_alias,omitempty"`
	Email      string `json:"email,omitempty"`
	Town       string `json:"town,omitempty"`
	IsCustomer bool   `json:"is_customer"`
	IsSupplier bool   `json:"is_supplier"`
}

type partyJSON struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Nom         string `json:"nom"`
	NameAlias   string `json:"name_alias"`
	Email       string `json:"email"`
	Town        string `json:"town"`
	Client      ID     `json:"client"`
	Fournisseur ID     `json:"fournisseur"`
}

func (j partyJSON) toParty() Party {
	name := j.Name
	if name == "" {
		name = j.Nom
	}
	return Party{
		ID:    int64(j.ID),
		Name:  name,
		Alias: j.NameAlias,
		Email: j.Email,
		Town:  j.Town,
		// client: 1 customer, 2 prospect, 3 both
		IsCustomer: j.Client == 1 || j.Client == 3,
		IsSupplier: j.Fournisseur == 1,
	}
}

// BankAccount is a Dolibarr bank account.
type BankAccount struct {
	ID       int64           `json:"id"`
	Ref      string          `json:"ref"`
	Label    string          `json:"label"`
	IBAN     string          `json:"iban,omitempty"`
	Currency string          `json:"currency_code,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

type bankAccountJSON struct {
	ID           ID     `json:"id"`
	Ref          string `json:"ref"`
	Label        string `json:"label"`
	IBAN         string `json:"iban"`
	CurrencyCode string `json:"currency_code"`
	Solde        Number `json:"solde"`
	Balance      Number `json:"balance"`
}

func (j bankAccountJSON) toAccount() BankAccount {
	bal := j.Balance.Decimal
	if !j.Balance.Set {
		bal = j.Solde.Decimal
	}
	return BankAccount{
		ID:       int64(j.ID),
		Ref:      j.Ref,
		Label:    j.Label,
		IBAN:     j.IBAN,
		Currency: j.CurrencyCode,
		Balance:  bal,
	}
}

type bankLineJSON struct {
	ID        ID        `json:"id"`
	RowID     ID        `json:"rowid"`
	FkAccount ID        `json:"fk_account"`
	Amount    Number    `json:"amount"`
	Label     string    `json:"label"`
	DateO     Timestamp `json:"dateo"`
	Date      Timestamp `json:"date"`
}

func (j bankLineJSON) toBankLine(accountID int64) matcher.BankLine {
	id := int64(j.ID)
	if id == 0 {
		id = int64(j.RowID)
	}
	if j.FkAccount != 0 {
		accountID = int64(j.FkAccount)
	}
	date := j.DateO.Time
	if date.IsZero() {
		date = j.Date.Time
	}
	return matcher.BankLine{
		ID:        id,
		AccountID: accountID,
		Date:      date,
		Amount:    j.Amount.Decimal,
		Label:     j.Label,
	}
}

// PaymentRequest records a payment against one invoice.
type PaymentRequest struct {
	Date              time.Time
	PaymentModeID     int64 // 2 = bank transfer in a default install
	AccountID         int64
	ClosePaidInvoices bool
	Number            string
	Comment           string
}

func (p PaymentRequest) body() map[string]any {
	closePaid := "no"
	if p.ClosePaidInvoices {
		closePaid = "yes"
	}
	return map[string]any{
		"datepaye":          strconv.FormatInt(p.Date.Unix(), 10),
		"paymentid":         p.PaymentModeID,
		"closepaidinvoices": closePaid,
		"accountid":         p.AccountID,
		"num_payment":       p.Number,
		"comment":           p.Comment,
	}
}

// BankLineRequest creates an entry on a bank account.
type BankLineRequest struct {
	Date            time.Time
	ValueDate       time.Time // Defaults to Date
	Type            string    // VIR, PRE, CHQ, CB...
	Label           string
	Amount          decimal.Decimal
	Category        int64
	ChequeNumber    string
	StatementNumber string
}

func (r BankLineRequest) body() map[string]any {
	typ := r.Type
	if typ == "" {
		typ = "VIR"
	}
	valueDate := r.ValueDate
	if valueDate.IsZero() {
		valueDate = r.Date
	}
	return map[string]any{
		"date":          strconv.FormatInt(r.Date.Unix(), 10),
		"datev":         strconv.FormatInt(valueDate.Unix(), 10),
		"type":          typ,
		"label":         r.Label,
		"amount":        r.Amount.StringFixed(2),
		"category":      r.Category,
		"cheque_number": r.ChequeNumber,
		"num_releve":    r.StatementNumber,
	}
}

// PartyRequest creates a third party.
type PartyRequest struct {
	Name        string
	Address     string
	Zip         string
	Town        string
	CountryCode string // Default: FR
	Phone       string
	Email       string
	Customer    bool
	Supplier    bool
}

func (r PartyRequest) body() map[string]any {
	country := r.CountryCode
	if country == "" {
		country = "FR"
	}
	flag := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	body := map[string]any{
		"name":         r.Name,
		"address":      r.Address,
		"zip":          r.Zip,
		"town":         r.Town,
		"country_code": country,
		"phone":        r.Phone,
		"email":        r.Email,
		"client":       flag(r.Customer),
		"fournisseur":  flag(r.Supplier),
	}
	if r.Supplier {
		body["code_fournisseur"] = "auto"
	}
	if r.Customer {
		body["code_client"] = "auto"
	}
	return body
}

// SupplierInvoiceRequest creates a draft supplier invoice with a single
// service line.
type SupplierInvoiceRequest struct {
	PartyID     int64
	RefSupplier string
	Date        time.Time
	TotalHT     decimal.Decimal
	TotalVAT    decimal.Decimal
	Description string
}

func (r SupplierInvoiceRequest) body() map[string]any {
	ttc := r.TotalHT.Add(r.TotalVAT)
	rate := decimal.Zero
	if r.TotalHT.IsPositive() {
		rate = r.TotalVAT.Div(r.TotalHT).Mul(decimal.NewFromInt(100))
	}
	desc := r.Description
	if desc == "" {
		desc = "Imported invoice"
	}
	date := r.Date
	if date.IsZero() {
		date = time.Now()
	}
	return map[string]any{
		"ref":          "auto",
		"ref_supplier": r.RefSupplier,
		"socid":        strconv.FormatInt(r.PartyID, 10),
		"date":         strconv.FormatInt(date.Unix(), 10),
		"note_private": desc,
		"lines": []map[string]any{{
			"product_type": "1",
			"desc":         desc,
			"subprice":     r.TotalHT.StringFixed(2),
			"qty":          "1",
			"tva_tx":       rate.StringFixed(2),
			"total_ht":     r.TotalHT.StringFixed(2),
			"total_tva":    r.TotalVAT.StringFixed(2),
			"total_ttc":    ttc.StringFixed(2),
		}},
	}
}
