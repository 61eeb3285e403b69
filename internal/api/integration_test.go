package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/api"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/application/service"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// =============================================================================
// API Integration Tests
// =============================================================================
// These tests run the full stack against a fake Dolibarr:
// HTTP request → Router → Handlers → Orchestrator → Dolibarr client + SQLite

const invoiceJSON = `{"id":"42","ref":"IN2501-0007","total_ht":"100.00","total_ttc":"120.00",
"remaintopay":"120.00","socid":"7","thirdparty":{"name":"ACME SARL"},"status":"1","paye":"0",
"date_lim_reglement":1737676800}`

type fakeDolibarr struct {
	payments  atomic.Int32
	bankLines atomic.Int32
	lastBody  atomic.Value
}

func (f *fakeDolibarr) handler() http.Handler {
	routes := map[string]func(w http.ResponseWriter, r *http.Request){
		"status":           func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, `{"success":{"code":200}}`) },
		"invoices":         func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "["+invoiceJSON+"]") },
		"invoices/42":      func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, invoiceJSON) },
		"supplierinvoices": func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "[]") },
		"thirdparties": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `[{"id":"7","name":"ACME SARL","client":"1"}]`)
		},
		"bankaccounts/1/lines": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				io.WriteString(w, "[]")
				return
			}
			body, _ := io.ReadAll(r.Body)
			f.lastBody.Store(string(body))
			f.bankLines.Add(1)
			io.WriteString(w, "3100")
		},
		"invoices/42/payments": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			f.lastBody.Store(string(body))
			f.payments.Add(1)
			io.WriteString(w, "901")
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("DOLAPIKEY") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h, ok := routes[strings.TrimPrefix(r.URL.Path, "/api/index.php/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	})
}

type integrationEnv struct {
	ts    *httptest.Server
	store *storage.Storage
	erp   *fakeDolibarr
	jobs  *service.ReconcileService
}

func createTestServer(t *testing.T) *integrationEnv {
	t.Helper()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "api_integration.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fake := &fakeDolibarr{}
	erpServer := httptest.NewServer(fake.handler())
	t.Cleanup(erpServer.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := dolibarr.NewClient(erpServer.URL, "test-key", dolibarr.Options{
		Timeout:  5 * time.Second,
		RetryMax: 0,
		Logger:   logger,
	})
	orch := reconcile.NewOrchestrator(client, store, nil, reconcile.Settings{BankAccountID: 1}, logger)
	jobs := service.NewReconcileService(orch, logger)

	server := api.NewServer(api.DefaultConfig(), api.Dependencies{
		Repo:       store,
		Reconciler: orch,
		Jobs:       jobs,
		ERP:        client,
	}, logger)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &integrationEnv{ts: ts, store: store, erp: fake, jobs: jobs}
}

func (e *integrationEnv) importCSV(t *testing.T, content string) dto.ImportResponse {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "releve-janvier.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(e.ts.URL+"/api/transactions/import", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result dto.ImportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func getJSON[T any](t *testing.T, url string) (T, int) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v, resp.StatusCode
}

func postJSON[T any](t *testing.T, url string, body any) (T, int) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v, resp.StatusCode
}

const statement = "Date;Libellé;Montant\n" +
	"15/01/2025;VIR SEPA ACME SARL IN2501-0007;120,00\n" +
	"16/01/2025;PRLV SEPA FREE MOBILE;-19,99\n"

func TestAPI_Integration_HealthCheck(t *testing.T) {
	env := createTestServer(t)

	health, code := getJSON[dto.HealthResponse](t, env.ts.URL+"/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.Checks["dolibarr"])
}

func TestAPI_Integration_ImportMatchReconcile(t *testing.T) {
	env := createTestServer(t)

	imported := env.importCSV(t, statement)
	require.Len(t, imported.Imported, 2)
	txID := imported.Imported[0].ID
	assert.Equal(t, "VIR SEPA ACME SARL IN2501-0007", imported.Imported[0].Label)

	again := env.importCSV(t, statement)
	assert.Empty(t, again.Imported)
	assert.Len(t, again.Duplicates, 2)

	matches, code := getJSON[dto.MatchesResponse](t, fmt.Sprintf("%s/api/transactions/%d/matches", env.ts.URL, txID))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "reference", matches.Source)
	require.NotNil(t, matches.Best)
	require.NotNil(t, matches.Best.Invoice)
	assert.Equal(t, int64(42), matches.Best.Invoice.ID)
	assert.Equal(t, "ACME SARL", matches.Best.Invoice.PartyName)

	result, code := postJSON[dto.ReconcileResponse](t, fmt.Sprintf("%s/api/transactions/%d/reconcile", env.ts.URL, txID),
		map[string]any{"invoice_id": 42, "invoice_type": "customer"})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, result.PaymentID)
	assert.Equal(t, int64(901), *result.PaymentID)
	assert.Equal(t, int32(1), env.erp.payments.Load())
	assert.Contains(t, env.erp.lastBody.Load(), `"closepaidinvoices":"yes"`)

	tx, code := getJSON[dto.TransactionResponse](t, fmt.Sprintf("%s/api/transactions/%d", env.ts.URL, txID))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "reconciled", tx.Status)
	assert.Equal(t, "IN2501-0007", tx.MatchedInvoiceRef)
	assert.Equal(t, "ACME SARL", tx.MatchedParty)

	payments, _ := getJSON[dto.PaymentListResponse](t, env.ts.URL+"/api/history/payments")
	require.Equal(t, 1, payments.Count)
	assert.Equal(t, int64(901), payments.Payments[0].PaymentID)
	assert.Equal(t, "120.00", payments.Payments[0].Amount)

	// A second reconcile of the same transaction is refused.
	_, code = postJSON[dto.APIError](t, fmt.Sprintf("%s/api/transactions/%d/reconcile", env.ts.URL, txID),
		map[string]any{"invoice_id": 42, "invoice_type": "customer"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, int32(1), env.erp.payments.Load())

	stats, _ := getJSON[dto.StatsResponse](t, env.ts.URL+"/api/transactions/stats")
	assert.Equal(t, 1, stats.ByStatus["reconciled"].Count)
	assert.Equal(t, 1, stats.ByStatus["pending"].Count)
}

func TestAPI_Integration_DryRunJob(t *testing.T) {
	env := createTestServer(t)
	env.importCSV(t, statement)

	started, code := postJSON[dto.StartJobResponse](t, env.ts.URL+"/api/reconcile/jobs", map[string]any{"apply": false})
	require.Equal(t, http.StatusAccepted, code)

	var job dto.JobResponse
	require.Eventually(t, func() bool {
		job, _ = getJSON[dto.JobResponse](t, env.ts.URL+"/api/reconcile/jobs/"+started.JobID)
		return job.Status == string(service.StatusCompleted)
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, job.Result)
	assert.True(t, job.Result.DryRun)
	assert.Equal(t, 2, job.Result.Processed)
	assert.Equal(t, 1, job.Result.Matched)
	assert.Equal(t, 0, job.Result.Applied)
	assert.Equal(t, int32(0), env.erp.payments.Load(), "dry runs never write to the ERP")

	pending, err := env.store.ListPending(0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestAPI_Integration_BookBankLine(t *testing.T) {
	env := createTestServer(t)
	imported := env.importCSV(t, statement)
	require.Len(t, imported.Imported, 2)
	txID := imported.Imported[1].ID

	result, code := postJSON[dto.ReconcileResponse](t, fmt.Sprintf("%s/api/transactions/%d/bank-line", env.ts.URL, txID),
		map[string]any{"type": "PRLV"})
	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, result.BankLineID)
	assert.Equal(t, int64(3100), *result.BankLineID)
	assert.Equal(t, int32(1), env.erp.bankLines.Load())
	assert.Equal(t, int32(0), env.erp.payments.Load())

	body, _ := env.erp.lastBody.Load().(string)
	assert.Contains(t, body, `"type":"PRLV"`)
	assert.Contains(t, body, "FREE MOBILE")

	tx, code := getJSON[dto.TransactionResponse](t, fmt.Sprintf("%s/api/transactions/%d", env.ts.URL, txID))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "reconciled", tx.Status)
	assert.Equal(t, "bank_line", tx.MatchedInvoiceType)

	actions, err := env.store.ListActions("transaction", txID, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, actions)

	_, code = postJSON[dto.APIError](t, fmt.Sprintf("%s/api/transactions/%d/bank-line", env.ts.URL, txID), map[string]any{})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, int32(1), env.erp.bankLines.Load(), "a reconciled transaction is never booked twice")
}

func TestAPI_Integration_MatchStatement(t *testing.T) {
	env := createTestServer(t)

	resp, code := postJSON[dto.MatchStatementResponse](t, env.ts.URL+"/api/match", map[string]any{
		"account_id": 1,
		"transactions": []map[string]any{
			{"date": "2025-01-15", "label": "VIR SEPA ACME SARL IN2501-0007", "amount": "120.00"},
		},
	})

	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Transactions, 1)
	require.NotNil(t, resp.Transactions[0].Best)
	require.NotNil(t, resp.Transactions[0].Best.Invoice)
	assert.Equal(t, "IN2501-0007", resp.Transactions[0].Best.Invoice.Ref)

	pending, err := env.store.ListPending(0)
	require.NoError(t, err)
	assert.Empty(t, pending, "statement matching stores nothing")
}
