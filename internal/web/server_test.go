package web_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/importer"
	"github.com/JonMunkholm/bulkimport/internal/store/memory"
	"github.com/JonMunkholm/bulkimport/internal/web"
)

const customersCSV = "name,phone,platform\nAn,0901,FB\nBinh,,FB\nChi,bad-phone,Insta\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
			MaxWaitTime:   50 * time.Millisecond,
			BatchSize:     100,
			MatchMode:     "contains",
		},
	}
}

type harness struct {
	store   *memory.Store
	limiter *importer.Limiter
	handler http.Handler
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	store := memory.New()
	limiter := importer.NewLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
	logger := zaptest.NewLogger(t)
	engine := importer.NewEngine(store, importer.WithLogger(logger), importer.WithLimiter(limiter))
	srv := web.NewServer(cfg, engine, limiter, logger)
	return &harness{store: store, limiter: limiter, handler: srv.Router()}
}

// upload builds a multipart import request.
func upload(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(web.OperatorHeader, "7")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestImport_Success(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := serve(h.handler, upload(t, "/api/import/customer", "customers.csv", customersCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	result := decode[importer.Result](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.RowsCreated)
	assert.Len(t, result.Warnings, 1)

	customers := h.store.Customers()
	require.Len(t, customers, 3)
	assert.Equal(t, int64(7), customers[0].CreatedBy)
}

func TestImport_ValidationFailureIs422(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := serve(h.handler, upload(t, "/api/import/customer", "customers.csv", "name,phone\n,0901\n", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	result := decode[importer.Result](t, rec)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "name", result.Errors[0].Column)
	assert.Empty(t, h.store.Customers())
	assert.Zero(t, h.store.Count(memory.OpBegin, ""))
}

func TestImport_FormOptions(t *testing.T) {
	h := newHarness(t, testConfig())

	fields := map[string]string{
		"fileType":      "csv",
		"hasHeaderRow":  "true",
		"columnMapping": `{"Tên khách hàng":"name","SĐT":"phone","Nền tảng":"platform"}`,
		"batchSize":     "1",
		"delimiter":     ";",
	}
	data := "Tên khách hàng;SĐT;Nền tảng\nAn;0901;Zalo\nBinh;0902;Zalo\n"
	rec := serve(h.handler, upload(t, "/api/import/customer", "upload.bin", data, fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[importer.Result](t, rec)
	assert.Equal(t, 2, result.RowsCreated)
	assert.Equal(t, 2, h.store.Count(memory.OpInsertCustomers, "customers"))
}

func TestImport_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		filename string
		content  string
		fields   map[string]string
		operator string
		status   int
		code     string
	}{
		{
			name:     "unsupported file type",
			path:     "/api/import/customer",
			filename: "customers.pdf",
			content:  customersCSV,
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "FILE006",
		},
		{
			name:     "unknown entity",
			path:     "/api/import/invoice",
			filename: "invoices.csv",
			content:  customersCSV,
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "IMP001",
		},
		{
			name:     "missing file",
			path:     "/api/import/customer",
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "FILE004",
		},
		{
			name:     "empty file",
			path:     "/api/import/customer",
			filename: "customers.csv",
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "FILE005",
		},
		{
			name:     "missing operator",
			path:     "/api/import/customer",
			filename: "customers.csv",
			content:  customersCSV,
			status:   http.StatusBadRequest,
			code:     "REQ001",
		},
		{
			name:     "invalid operator",
			path:     "/api/import/customer",
			filename: "customers.csv",
			content:  customersCSV,
			operator: "abc",
			status:   http.StatusBadRequest,
			code:     "REQ001",
		},
		{
			name:     "invalid boolean field",
			path:     "/api/import/customer",
			filename: "customers.csv",
			content:  customersCSV,
			fields:   map[string]string{"updateExisting": "maybe"},
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "REQ002",
		},
		{
			name:     "unknown match mode",
			path:     "/api/import/customer",
			filename: "customers.csv",
			content:  customersCSV,
			fields:   map[string]string{"matchMode": "sounds-like"},
			operator: "7",
			status:   http.StatusBadRequest,
			code:     "IMP007",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())

			req := upload(t, tt.path, tt.filename, tt.content, tt.fields)
			req.Header.Set(web.OperatorHeader, tt.operator)

			rec := serve(h.handler, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			resp := decode[web.ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Empty(t, h.store.Customers())
		})
	}
}

func TestImport_FileTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 64
	h := newHarness(t, cfg)

	big := customersCSV + string(bytes.Repeat([]byte("Dung,0903,FB\n"), 20))
	rec := serve(h.handler, upload(t, "/api/import/customer", "customers.csv", big, nil))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "FILE001", decode[web.ErrorResponse](t, rec).Code)
}

func TestImport_BusyReturns503(t *testing.T) {
	h := newHarness(t, testConfig())
	require.True(t, h.limiter.TryAcquire())
	defer h.limiter.Release()

	rec := serve(h.handler, upload(t, "/api/import/customer", "customers.csv", customersCSV, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "IMP004", decode[web.ErrorResponse](t, rec).Code)
}

func TestValidate_DoesNotWrite(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := serve(h.handler, upload(t, "/api/import/customer/validate", "customers.csv", customersCSV, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[importer.Result](t, rec)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Zero(t, result.RowsCreated)
	assert.Empty(t, h.store.Customers())
	assert.Empty(t, h.store.Statements())
}

func TestDownloadTemplate(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := serve(h.handler, httptest.NewRequest(http.MethodGet, "/api/import/customer/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "customer_template.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "name,"), rec.Body.String())

	rec = serve(h.handler, httptest.NewRequest(http.MethodGet, "/api/import/invoice/template", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret-1", "secret-2"}
	h := newHarness(t, cfg)

	rec := serve(h.handler, upload(t, "/api/import/customer", "customers.csv", customersCSV, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := upload(t, "/api/import/customer", "customers.csv", customersCSV, nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = serve(h.handler, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.store.Customers())

	req = upload(t, "/api/import/customer", "customers.csv", customersCSV, nil)
	req.Header.Set("X-API-Key", "secret-2")
	rec = serve(h.handler, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Health and metrics stay open.
	rec = serve(h.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := serve(h.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status  string                 `json:"status"`
		Imports importer.LimiterStatus `json:"imports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)

	serve(h.handler, upload(t, "/api/import/customer", "customers.csv", customersCSV, nil))

	rec = serve(h.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bulkimport_")
}
