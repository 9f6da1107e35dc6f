package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vowpact/internal/auth"
	"vowpact/internal/config"
	"vowpact/internal/contract"
	"vowpact/internal/generate"
	"vowpact/internal/logging"
	"vowpact/internal/service"
	"vowpact/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type fakePDF struct{}

func (fakePDF) RenderPDF(context.Context, string) ([]byte, error) {
	return []byte("%PDF-1.7 test"), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Server.BaseURL = "https://vowpact.test"

	st, err := store.OpenJSON(dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	audit, err := logging.OpenAudit(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	authSvc := auth.NewService(st, time.Hour, auth.WithBcryptCost(bcrypt.MinCost), auth.WithAudit(audit))
	contracts := service.New(service.Deps{
		Store:     st,
		Generator: generate.NewGenerator(generate.NewTemplateClient(), 2, 0),
		PDF:       fakePDF{},
		Audit:     audit,
		BaseURL:   cfg.Server.BaseURL,
	})
	return New(cfg, contracts, authSvc, zaptest.NewLogger(t))
}

// client is a cookie-carrying test client.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, base string) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: base, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, body string) (*http.Response, map[string]interface{}) {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	} else {
		out = map[string]interface{}{"raw": string(raw)}
	}
	return resp, out
}

func (c *client) register(email string) {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/api/auth/register",
		`{"email":"`+email+`","password":"hunter22","name":"Vendor","business_name":"Golden Hour","vendor_type":"photographer"}`)
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, body)
}

func signatureDataURL(t *testing.T, blank bool) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 100))
	if !blank {
		for x := 30; x < 270; x++ {
			for y := 45; y < 55; y++ {
				img.Set(x, y, color.NRGBA{R: 10, G: 20, B: 60, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

const contractBody = `{
	"title": "Wedding photography",
	"client": {"name": "Sam Rivera", "email": "sam@example.com"},
	"event": {"date": "2026-09-12", "venue": "Orchard Barn"},
	"items": [{"description": "Full day", "quantity": 1, "unit_price_cents": 350000}],
	"deposit_cents": 100000,
	"body": "## Services\n\nAll day."
}`

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	resp, body := newClient(t, ts.URL).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestAccessLog_RecordsRoutePattern(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, logging.Initialize(logDir, config.LoggingConfig{DebugMode: true, Level: "debug", JSONFormat: true}))
	t.Cleanup(func() { _ = logging.Initialize(logDir, config.LoggingConfig{}) })

	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()
	vendor := newClient(t, ts.URL)
	vendor.register("alice@goldenhour.test")
	resp, body := vendor.do(http.MethodPost, "/api/contracts", contractBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token := body["share_token"].(string)

	resp, _ = newClient(t, ts.URL).do(http.MethodGet, "/api/share/"+token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logging.CloseAll()

	matches, err := filepath.Glob(filepath.Join(logDir, "*_http.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), `"route":"/api/share/{token}`)
	assert.Contains(t, string(content), `"status":200`)
	assert.NotContains(t, string(content), token)
}

func TestAuthFlow(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()
	c := newClient(t, ts.URL)

	resp, body := c.do(http.MethodGet, "/api/contracts", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "not logged in", body["error"])

	c.register("Vendor@Example.com")
	resp, body = c.do(http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "vendor@example.com", body["email"])
	assert.NotContains(t, body, "password_hash")

	resp, _ = newClient(t, ts.URL).do(http.MethodPost, "/api/auth/register",
		`{"email":"vendor@example.com","password":"hunter22","name":"Other"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/login", `{"email":"vendor@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/auth/login", `{"email":"vendor@example.com","password":"hunter22"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContractLifecycle(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()
	vendor := newClient(t, ts.URL)
	vendor.register("alice@goldenhour.test")

	resp, body := vendor.do(http.MethodPost, "/api/contracts", contractBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := body["id"].(string)
	token := body["share_token"].(string)
	assert.Equal(t, "/api/contracts/"+id, resp.Header.Get("Location"))
	assert.Equal(t, "https://vowpact.test/api/share/"+token, body["share_url"])
	assert.Equal(t, "draft", body["status"])
	assert.EqualValues(t, 350000, body["total_cents"])
	assert.Equal(t, "Golden Hour", body["vendor"].(map[string]interface{})["name"])

	resp, body = vendor.do(http.MethodPost, "/api/contracts", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "title is required")

	// Another vendor cannot see it.
	other := newClient(t, ts.URL)
	other.register("bob@petals.test")
	resp, _ = other.do(http.MethodGet, "/api/contracts/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = vendor.do(http.MethodPut, "/api/contracts/"+id, `{"version": 7, "title": "x", "client": {"name": "Sam"}}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "modified concurrently")

	resp, body = vendor.do(http.MethodPut, "/api/contracts/"+id, strings.Replace(contractBody, "{", `{"version": 1,`, 1))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 2, body["version"])

	resp, body = vendor.do(http.MethodPost, "/api/contracts/"+id+"/generate", `{"tone":"friendly"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	generated := body["contract"].(map[string]interface{})
	assert.Contains(t, generated["body"], "Image Ownership and Usage")
	assert.NotEmpty(t, body["sections"])

	resp, body = vendor.do(http.MethodGet, "/api/contracts?status=draft", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["contracts"], 1)
	resp, _ = vendor.do(http.MethodGet, "/api/contracts?include_deleted=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The client opens the share link and signs.
	guest := newClient(t, ts.URL)
	resp, body = guest.do(http.MethodGet, "/api/share/"+token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "owner_id")
	assert.NotContains(t, body, "share_token")

	resp, body = guest.do(http.MethodPost, "/api/share/"+token+"/sign",
		`{"signer_name":"Sam Rivera","signature":"`+signatureDataURL(t, true)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "signature rejected")

	resp, body = guest.do(http.MethodPost, "/api/share/"+token+"/sign",
		`{"signer_name":"Sam Rivera","signature":"`+signatureDataURL(t, false)+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "signed", body["status"])
	sig := body["signature"].(map[string]interface{})
	assert.Equal(t, "Sam Rivera", sig["signer_name"])
	assert.NotContains(t, sig, "ip_address")

	resp, _ = guest.do(http.MethodPost, "/api/share/"+token+"/sign",
		`{"signer_name":"Sam Rivera","signature":"`+signatureDataURL(t, false)+`"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = vendor.do(http.MethodGet, "/api/contracts/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "127.0.0.1", body["signature"].(map[string]interface{})["ip_address"])

	resp, _ = vendor.do(http.MethodPut, "/api/contracts/"+id, contractBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = vendor.do(http.MethodGet, "/api/contracts/"+id+"/pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "contract-")
	assert.True(t, strings.HasPrefix(body["raw"].(string), "%PDF"))

	resp, body = vendor.do(http.MethodGet, "/api/contracts/"+id+"/html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["raw"], "Sam Rivera")

	resp, body = vendor.do(http.MethodPost, "/api/contracts/"+id+"/duplicate", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "draft", body["status"])
	assert.NotContains(t, body, "signature")

	resp, body = vendor.do(http.MethodDelete, "/api/contracts/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deleted", body["status"])

	resp, _ = guest.do(http.MethodGet, "/api/share/"+token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = guest.do(http.MethodGet, "/api/share/"+token+"/pdf", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = vendor.do(http.MethodGet, "/api/contracts/"+id+"/history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var kinds []string
	for _, e := range body["events"].([]interface{}) {
		kinds = append(kinds, e.(map[string]interface{})["event"].(string))
	}
	assert.Equal(t, []string{
		string(logging.AuditContractCreated),
		string(logging.AuditContractUpdated),
		string(logging.AuditContractGenerated),
		string(logging.AuditContractViewed),
		string(logging.AuditSignatureRejected),
		string(logging.AuditContractSigned),
		string(logging.AuditSignatureRejected),
		string(logging.AuditContractExported),
		string(logging.AuditContractDeleted),
	}, kinds)
}

func TestPreview(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()
	c := newClient(t, ts.URL)
	c.register("alice@goldenhour.test")

	resp, body := c.do(http.MethodPost, "/api/contracts/preview",
		`{"vendor_type":"caterer","client":{"name":"Jo"},"event":{"guest_count":120},"instructions":"Nut-free kitchen."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Caterer Services Agreement for Jo", body["title"])
	assert.Contains(t, body["markdown"], "Final Headcount")

	resp, _ = c.do(http.MethodPost, "/api/contracts/preview", `{"vendor_type":"juggler","client":{"name":"Jo"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{contract.ErrAlreadySigned, http.StatusConflict},
		{contract.ErrVersionConflict, http.StatusConflict},
		{contract.ErrInvalid, http.StatusBadRequest},
		{service.ErrSignatureRejected, http.StatusUnprocessableEntity},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()
	resp, body := newClient(t, ts.URL).do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no such route", body["error"])
}

func TestServe_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	transport := &http.Transport{}
	hc := &http.Client{Transport: transport, Timeout: 2 * time.Second}
	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := hc.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	transport.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = hc.Get(url)
	assert.Error(t, err)
}
