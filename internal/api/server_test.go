package api_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/api"
	"github.com/xkilldash9x/markasorgu/internal/cache"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/engine"
	"github.com/xkilldash9x/markasorgu/internal/mocks"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type response struct {
	Success bool   `json:"success"`
	Source  string `json:"source"`
	Payload struct {
		Items []schemas.BrandRecord `json:"items"`
	} `json:"payload"`
	Detail   *schemas.DetailResult `json:"detail"`
	Error    string                `json:"error"`
	NotFound bool                  `json:"notFound"`
}

func newTestServer(t *testing.T, exec *mocks.MockExecutor, withCache bool) http.Handler {
	t.Helper()
	cfg := config.NewDefaultConfig().Server
	cfg.RequestTimeout = time.Second
	var c *cache.SearchCache
	if withCache {
		c = cache.NewWithTTL(16, time.Minute)
	}
	return api.NewServer(cfg, exec, c, zaptest.NewLogger(t)).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

func searchFor(text string, limit int) interface{} {
	return mock.MatchedBy(func(task schemas.Task) bool {
		return task.Kind == schemas.TaskSearch && task.Search.Text == text && task.Search.Limit == limit
	})
}

var acmeRecords = []schemas.BrandRecord{
	{MarkaName: "ACME", ApplicationNo: "2021/000101", HolderName: "ACME GIDA A.Ş.", ApplicationDate: "04.01.2021", CurrentStatus: "TESCİL EDİLDİ", NiceClasses: "29 / 30"},
}

// -- Root and Metrics --

func TestRoot(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Stats").Return(engine.Stats{Workers: 5, Active: 2, Queued: 1})
	h := newTestServer(t, exec, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "ok",
		"message": "Türk Patent API çalışıyor",
		"endpoints": ["/api/search", "/api/detail"],
		"pool": {"workers": 5, "active": 2, "queued": 1}
	}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, new(mocks.MockExecutor), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "markasorgu_sessions_active")
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, new(mocks.MockExecutor), false)

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnroutedRequestsAnswerJSON(t *testing.T) {
	testCases := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantErr  string
	}{
		{"wrong method on search", http.MethodGet, "/api/search", http.StatusMethodNotAllowed, "method GET not allowed"},
		{"wrong method on detail", http.MethodPut, "/api/detail", http.StatusMethodNotAllowed, "method PUT not allowed"},
		{"unknown api route", http.MethodPost, "/api/unknown", http.StatusNotFound, "route not found"},
		{"unknown root route", http.MethodGet, "/favicon.ico", http.StatusNotFound, "route not found"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exec := new(mocks.MockExecutor)
			h := newTestServer(t, exec, false)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			var resp response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %q", rec.Body.String())
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tc.wantErr)
			exec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestHandlerPanicAnswersJSON(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("executor exploded") }).
		Return(schemas.TaskResult{}, nil)
	h := newTestServer(t, exec, false)

	rec, resp := post(t, h, "/api/search", `{"searchText":"ACME"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, resp.Success)
	assert.Equal(t, "internal error", resp.Error)
}

// -- Search --

func TestSearch_Live(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, searchFor("ACME", 3)).Return(schemas.TaskResult{Records: acmeRecords}, nil).Once()
	h := newTestServer(t, exec, true)

	rec, resp := post(t, h, "/api/search", `{"searchText":"  ACME ","limit":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "live", resp.Source)
	assert.Equal(t, acmeRecords, resp.Payload.Items)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	exec.AssertExpectations(t)
}

func TestSearch_ServedFromCache(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, searchFor("ACME", 100)).Return(schemas.TaskResult{Records: acmeRecords}, nil).Once()
	h := newTestServer(t, exec, true)

	_, first := post(t, h, "/api/search", `{"searchText":"ACME"}`)
	_, second := post(t, h, "/api/search", `{"params":{"searchText":"ACME"}}`)

	assert.Equal(t, "live", first.Source)
	assert.Equal(t, "cluster", second.Source)
	assert.Equal(t, first.Payload.Items, second.Payload.Items)
	exec.AssertNumberOfCalls(t, "Submit", 1)
}

func TestSearch_EmptyResultIsAnArray(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, mock.Anything).Return(schemas.TaskResult{}, nil)
	h := newTestServer(t, exec, false)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"searchText":"YOK"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"source":"live","payload":{"items":[]}}`, rec.Body.String())
}

func TestSearch_LimitResolution(t *testing.T) {
	testCases := []struct {
		name  string
		body  string
		text  string
		limit int
	}{
		{"nested params", `{"params":{"searchText":"ACME","limit":7}}`, "ACME", 7},
		{"top-level limit wins", `{"limit":2,"params":{"searchText":"ACME","limit":7}}`, "ACME", 2},
		{"default limit", `{"searchText":"ACME"}`, "ACME", schemas.DefaultSearchLimit},
		{"clamped limit", `{"searchText":"ACME","limit":100000}`, "ACME", schemas.MaxSearchLimit},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exec := new(mocks.MockExecutor)
			exec.On("Submit", mock.Anything, searchFor(tc.text, tc.limit)).Return(schemas.TaskResult{}, nil).Once()
			h := newTestServer(t, exec, false)

			rec, _ := post(t, h, "/api/search", tc.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			exec.AssertExpectations(t)
		})
	}
}

func TestSearch_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		submit   error
		wantCode int
		wantErr  string
	}{
		{"empty body", ``, nil, http.StatusBadRequest, "Arama terimi gerekli"},
		{"blank text", `{"searchText":"   "}`, nil, http.StatusBadRequest, "Arama terimi gerekli"},
		{"malformed json", `{"searchText":`, nil, http.StatusBadRequest, "geçersiz JSON gövdesi"},
		{"protocol failure", `{"searchText":"ACME"}`, fmt.Errorf("%w: Marka input", schemas.ErrControlNotFound), http.StatusBadGateway, "control not found"},
		{"pool closed", `{"searchText":"ACME"}`, schemas.ErrPoolClosed, http.StatusServiceUnavailable, "session pool closed"},
		{"caller timeout", `{"searchText":"ACME"}`, context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline exceeded"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exec := new(mocks.MockExecutor)
			if tc.submit != nil {
				exec.On("Submit", mock.Anything, mock.Anything).Return(schemas.TaskResult{}, tc.submit)
			}
			h := newTestServer(t, exec, true)

			rec, resp := post(t, h, "/api/search", tc.body)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tc.wantErr)
			if tc.submit == nil {
				exec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSearch_FailuresAreNotCached(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, mock.Anything).Return(schemas.TaskResult{}, errors.New("boom")).Once()
	exec.On("Submit", mock.Anything, mock.Anything).Return(schemas.TaskResult{Records: acmeRecords}, nil).Once()
	h := newTestServer(t, exec, true)

	rec, _ := post(t, h, "/api/search", `{"searchText":"ACME"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	_, resp := post(t, h, "/api/search", `{"searchText":"ACME"}`)
	assert.Equal(t, "live", resp.Source)
}

func TestSearch_BodyLimit(t *testing.T) {
	cfg := config.NewDefaultConfig().Server
	cfg.MaxBodyBytes = 32
	h := api.NewServer(cfg, new(mocks.MockExecutor), nil, zaptest.NewLogger(t)).Handler()

	body := `{"searchText":"` + strings.Repeat("A", 256) + `"}`
	rec, resp := post(t, h, "/api/search", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, resp.Success)
}

// -- Detail --

func TestDetail_Found(t *testing.T) {
	detail := schemas.NewDetailResult()
	detail.MarkaBilgileri["Marka Adı"] = "ACME"
	detail.IslemBilgileri = append(detail.IslemBilgileri, schemas.ProcessEntry{Tarih: "04.01.2021", Islem: "BAŞVURU"})

	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, mock.MatchedBy(func(task schemas.Task) bool {
		return task.Kind == schemas.TaskDetail && task.Detail.ApplicationNo == "2021/000101"
	})).Return(schemas.TaskResult{Detail: &detail}, nil)
	h := newTestServer(t, exec, false)

	rec, resp := post(t, h, "/api/detail", `{"applicationNo":"2021/000101"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Detail)
	assert.Equal(t, "ACME", resp.Detail.MarkaBilgileri["Marka Adı"])
	assert.Equal(t, "BAŞVURU", resp.Detail.IslemBilgileri[0].Islem)
}

func TestDetail_NotFound(t *testing.T) {
	notFound := schemas.NotFoundDetail()
	exec := new(mocks.MockExecutor)
	exec.On("Submit", mock.Anything, mock.Anything).Return(schemas.TaskResult{Detail: &notFound}, nil)
	h := newTestServer(t, exec, false)

	rec, resp := post(t, h, "/api/detail", `{"applicationNo":"2099/999999"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	assert.True(t, resp.NotFound)
	assert.Contains(t, resp.Error, "bulunamadı")
}

func TestDetail_Validation(t *testing.T) {
	exec := new(mocks.MockExecutor)
	h := newTestServer(t, exec, false)

	rec, resp := post(t, h, "/api/detail", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Başvuru numarası gerekli", resp.Error)
	exec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

// -- Lifecycle --

func TestServe_GracefulShutdown(t *testing.T) {
	exec := new(mocks.MockExecutor)
	exec.On("Stats").Return(engine.Stats{Workers: 1})
	cfg := config.NewDefaultConfig().Server
	cfg.ShutdownTimeout = time.Second
	srv := api.NewServer(cfg, exec, nil, zaptest.NewLogger(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, bytes.Contains(body, []byte(`"status":"ok"`)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
