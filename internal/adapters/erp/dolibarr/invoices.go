package dolibarr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
)

const (
	customerInvoices = "invoices"
	supplierInvoices = "supplierinvoices"

	// How many invoices a reference lookup scans when the filtered query
	// finds nothing.
	referenceScanLimit = 500
	partyInvoiceLimit  = 100
)

func invoiceEndpoint(kind matcher.InvoiceKind) string {
	if kind == matcher.KindSupplier {
		return supplierInvoices
	}
	return customerInvoices
}

// ListInvoices returns invoices of one kind. status is StatusUnpaid,
// StatusPaid or StatusAll. Supplier invoices are filtered locally since the
// supplier endpoint does not honor the status parameter on every version.
func (c *Client) ListInvoices(ctx context.Context, kind matcher.InvoiceKind, status string, limit int) ([]matcher.Invoice, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortfield", "t.rowid")
	q.Set("sortorder", "DESC")
	if kind == matcher.KindCustomer && status != StatusAll {
		q.Set("status", status)
	}

	var raw []invoiceJSON
	if err := c.list(ctx, invoiceEndpoint(kind), q, &raw); err != nil {
		return nil, fmt.Errorf("failed to list %s invoices: %w", kind, err)
	}

	invoices := make([]matcher.Invoice, 0, len(raw))
	for _, j := range raw {
		if kind == matcher.KindSupplier {
			if status == StatusUnpaid && !j.unpaid() {
				continue
			}
			if status == StatusPaid && !j.paid() {
				continue
			}
		}
		invoices = append(invoices, j.toInvoice(kind))
	}
	return invoices, nil
}

// GetInvoice fetches one invoice by id
func (c *Client) GetInvoice(ctx context.Context, kind matcher.InvoiceKind, id int64) (*matcher.Invoice, error) {
	var j invoiceJSON
	endpoint := fmt.Sprintf("%s/%d", invoiceEndpoint(kind), id)
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &j); err != nil {
		return nil, err
	}
	inv := j.toInvoice(kind)
	return &inv, nil
}

// FindInvoiceByReference looks a reference up among customer invoices, then
// supplier invoices. It returns nil without error when nothing matches. A
// step that fails is skipped; the error is returned only if nothing was
// found afterwards.
func (c *Client) FindInvoiceByReference(ctx context.Context, ref string) (*matcher.Invoice, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Filtered query first: cheap when the instance supports sqlfilters.
	q := url.Values{}
	q.Set("sqlfilters", fmt.Sprintf("(t.ref:like:'%s%%')", strings.ReplaceAll(ref, "'", "")))
	q.Set("limit", "10")
	var filtered []invoiceJSON
	if err := c.list(ctx, customerInvoices, q, &filtered); err != nil {
		c.logger.Debug("filtered reference lookup failed", "ref", ref, "error", err)
		keep(err)
	}
	for _, j := range filtered {
		r := strings.ToUpper(j.Ref)
		if r == ref || strings.Contains(r, ref) {
			inv := j.toInvoice(matcher.KindCustomer)
			return &inv, nil
		}
	}

	for _, kind := range []matcher.InvoiceKind{matcher.KindCustomer, matcher.KindSupplier} {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(referenceScanLimit))
		var raw []invoiceJSON
		if err := c.list(ctx, invoiceEndpoint(kind), q, &raw); err != nil {
			c.logger.Debug("reference scan failed", "ref", ref, "kind", kind, "error", err)
			keep(err)
			continue
		}
		for _, j := range raw {
			candidates := []string{j.Ref}
			if kind == matcher.KindSupplier {
				candidates = append(candidates, j.RefSupplier)
			}
			for _, r := range candidates {
				if refMatches(r, ref) {
					inv := j.toInvoice(kind)
					return &inv, nil
				}
			}
		}
	}

	return nil, firstErr
}

// refMatches compares an ERP reference against an uppercased lookup key:
// equal, containing it, or equal once dashes are dropped.
func refMatches(invRef, ref string) bool {
	r := strings.ToUpper(strings.TrimSpace(invRef))
	if r == "" {
		return false
	}
	if r == ref || strings.Contains(r, ref) {
		return true
	}
	return strings.ReplaceAll(r, "-", "") == strings.ReplaceAll(ref, "-", "")
}

// ListPartyInvoices returns the invoices of one third party. Customer
// invoices are fetched per status so paid ones can be flagged; supplier
// invoices carry their own paid state.
func (c *Client) ListPartyInvoices(ctx context.Context, partyID int64, kind matcher.InvoiceKind, includePaid bool) ([]matcher.Invoice, error) {
	var invoices []matcher.Invoice

	if kind == matcher.KindSupplier {
		q := url.Values{}
		q.Set("thirdparty_ids", strconv.FormatInt(partyID, 10))
		q.Set("limit", strconv.Itoa(partyInvoiceLimit))
		var raw []invoiceJSON
		if err := c.list(ctx, supplierInvoices, q, &raw); err != nil {
			return nil, fmt.Errorf("failed to list supplier invoices for party %d: %w", partyID, err)
		}
		for _, j := range raw {
			if j.partyID() != partyID {
				continue
			}
			inv := j.toInvoice(kind)
			if !includePaid && inv.AlreadyPaid() {
				continue
			}
			invoices = append(invoices, inv)
		}
		return invoices, nil
	}

	statuses := []string{StatusUnpaid}
	if includePaid {
		statuses = append(statuses, StatusPaid)
	}
	for _, status := range statuses {
		q := url.Values{}
		q.Set("thirdparty_ids", strconv.FormatInt(partyID, 10))
		q.Set("status", status)
		q.Set("limit", strconv.Itoa(partyInvoiceLimit))
		var raw []invoiceJSON
		if err := c.list(ctx, customerInvoices, q, &raw); err != nil {
			return nil, fmt.Errorf("failed to list %s invoices for party %d: %w", status, partyID, err)
		}
		for _, j := range raw {
			if j.partyID() != partyID {
				continue
			}
			inv := j.toInvoice(kind)
			if status == StatusPaid {
				inv.Paid = true
			}
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

// AddPayment records a payment on an invoice and returns the payment id.
func (c *Client) AddPayment(ctx context.Context, kind matcher.InvoiceKind, invoiceID int64, req PaymentRequest) (int64, error) {
	endpoint := fmt.Sprintf("%s/%d/payments", invoiceEndpoint(kind), invoiceID)
	id, err := c.create(ctx, endpoint, req.body())
	if err != nil {
		return 0, fmt.Errorf("failed to add payment to %s invoice %d: %w", kind, invoiceID, err)
	}
	c.logger.Info("payment created", "invoice_id", invoiceID, "kind", kind, "payment_id", id)
	return id, nil
}

// CreateSupplierInvoice creates a draft supplier invoice and returns its id.
func (c *Client) CreateSupplierInvoice(ctx context.Context, req SupplierInvoiceRequest) (int64, error) {
	if req.PartyID == 0 {
		return 0, errors.New("supplier invoice needs a party")
	}
	id, err := c.create(ctx, supplierInvoices, req.body())
	if err != nil {
		return 0, fmt.Errorf("failed to create supplier invoice %q: %w", req.RefSupplier, err)
	}
	c.logger.Info("supplier invoice created", "invoice_id", id, "ref_supplier", req.RefSupplier)
	return id, nil
}
