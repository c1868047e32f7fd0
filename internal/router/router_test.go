package router

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sostrack/internal/config"
	"sostrack/internal/dto"
	"sostrack/internal/middleware"
	"sostrack/internal/repository"
	"sostrack/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	store  *repository.MemoryStore
	token  string
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	cfg := &config.Config{CSVMaxBytes: 1 << 20, ServiceName: "sostrack-test", JWTSecret: secret, BatchRetentionHours: 24}
	store := repository.NewMemoryStore()
	svcs := NewServices(cfg, store, worker.NewDispatcher(nil))
	return &testServer{t: t, engine: New(cfg, svcs, store, nil, nil), store: store}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) seed() (dto.ProductResponse, string) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/categories", map[string]any{
		"name":       "Gummies",
		"containers": []map[string]any{{"name": "Jar", "weight_oz": "8", "sku": "JAR"}},
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	cat := decode[dto.CategoryResponse](s.t, w)

	w = s.do(http.MethodPost, "/v1/products", map[string]any{"category": "gummies", "flavor": "Blue Raz"})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.ProductResponse](s.t, w), cat.Containers[0].ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"store":"connected","redis":"disabled"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestAPIDocsServedOutsideProduction(t *testing.T) {
	s := newTestServer(t, "secret")

	w := s.do(http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode[struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}](t, w)
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for _, route := range s.engine.Routes() {
		if route.Path == "/openapi.json" || route.Path == "/swagger/*any" {
			continue
		}
		path := strings.ReplaceAll(route.Path, ":id", "{id}")
		methods, ok := doc.Paths[path]
		if assert.True(t, ok, "undocumented route %s", route.Path) {
			assert.Contains(t, methods, strings.ToLower(route.Method), route.Path)
		}
	}

	w = s.do(http.MethodGet, "/swagger/index.html", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	t.Cleanup(func() { gin.SetMode(gin.TestMode) })
	prod := &config.Config{Env: "production", CSVMaxBytes: 1 << 20, ServiceName: "sostrack-test", BatchRetentionHours: 24}
	store := repository.NewMemoryStore()
	engine := New(prod, NewServices(prod, store, worker.NewDispatcher(nil)), store, nil, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, "")
	p, jar := s.seed()

	w := s.do(http.MethodPut, "/v1/products/"+p.ID+"/inventory", map[string]any{
		"entries": []map[string]any{{"template_id": jar, "quantity": 5}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/batches", map[string]any{
		"product_id": p.ID,
		"containers": []map[string]any{{"template_id": jar, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[dto.BatchResponse](t, w)
	assert.Equal(t, "Make", b.Status)

	w = s.do(http.MethodGet, "/v1/products/"+p.ID, nil)
	assert.Equal(t, "Make", decode[dto.ProductResponse](t, w).Status)

	w = s.do(http.MethodPost, "/v1/batches/"+b.ID+"/finalize", map[string]any{
		"final_count": []map[string]any{{"container_template_id": jar, "quantity": "3"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code, "finalize before package")

	w = s.do(http.MethodPost, "/v1/batches/"+b.ID+"/package", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/batches/"+b.ID+"/finalize", map[string]any{
		"final_count": []map[string]any{{"container_template_id": jar, "quantity": 3}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ready", decode[dto.BatchResponse](t, w).Status)

	w = s.do(http.MethodGet, "/v1/products/"+p.ID, nil)
	got := decode[dto.ProductResponse](t, w)
	assert.Equal(t, "Ready", got.Status)
	assert.Equal(t, 8, got.Inventory[0].Quantity)

	w = s.do(http.MethodPost, "/v1/batches/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[dto.SweepResponse](t, w).Completed)

	w = s.do(http.MethodPost, "/v1/batches/delete", map[string]any{"ids": []string{b.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.BulkDeleteResponse](t, w).Deleted)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, "")
	p, _ := s.seed()

	w := s.do(http.MethodGet, "/v1/products/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/products/"+"3f1c7a56-8f43-4f55-9a51-3b1a4c1c0d11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/v1/products", map[string]any{"category": "Gummies"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPost, "/v1/products", map[string]any{"category": "Gummies", "flavor": "Blue Raz"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/v1/batches", map[string]any{"product_id": p.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "run without containers or weight")

	s.store.FailCommits(assert.AnError)
	w = s.do(http.MethodPost, "/v1/batches", map[string]any{"product_id": p.ID, "bulk_weight_oz": "12"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestImportFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, "")
	p, jar := s.seed()
	s.do(http.MethodPut, "/v1/products/"+p.ID+"/inventory", map[string]any{
		"entries": []map[string]any{{"template_id": jar, "quantity": 2}},
	})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "orders.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Product Name,Product Description,Product Quantity,SKU\nBlue Raz #1,,2,GUM-JAR\nBlue Raz #2,,3,\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/imports/parse", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	parsed := decode[dto.ParseResponse](t, w)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, 5, parsed.Rows[0].Quantity)
	assert.Zero(t, parsed.Unresolved)

	w = s.do(http.MethodPost, "/v1/imports/preview", dto.PreviewRequest{Rows: parsed.Rows})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[dto.PreviewResponse](t, w)
	require.Len(t, preview.Lines, 1)
	assert.Equal(t, -3, preview.Lines[0].FinalQty)

	w = s.do(http.MethodPost, "/v1/imports/commit", dto.CommitRequest{Rows: parsed.Rows, FileName: parsed.FileName, Content: parsed.Content})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	committed := decode[dto.CommitResponse](t, w)
	require.NotNil(t, committed.CSVFileID)

	w = s.do(http.MethodGet, "/v1/csv-files/"+*committed.CSVFileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, parsed.Content, decode[dto.CSVFileResponse](t, w).Content)

	w = s.do(http.MethodGet, "/v1/products/"+p.ID+"/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[[]dto.HistoryResponse](t, w)
	require.Len(t, hist, 1)
	assert.Equal(t, "CSV Import", hist[0].ChangeType)
}

func TestJWTAuth(t *testing.T) {
	s := newTestServer(t, "test-secret")

	w := s.do(http.MethodGet, "/v1/products", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tok, err := middleware.IssueToken("test-secret", "ops", "Ops", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	s.token = tok
	w = s.do(http.MethodGet, "/v1/products", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.token = "garbage"
	w = s.do(http.MethodGet, "/v1/products", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
