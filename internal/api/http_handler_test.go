package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-browse-service/internal/catalog"
	"catalog-browse-service/internal/domain"
	"catalog-browse-service/internal/imagecache"
	"catalog-browse-service/internal/store"
)

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) UpsertProducts(ctx context.Context, products []domain.Product) (int, error) {
	args := m.Called(ctx, products)
	return args.Int(0), args.Error(1)
}

func (m *MockProductStorer) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProductStorer) Close() error {
	return nil
}

// jpegHeader is enough for content sniffing to report image/jpeg.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

// stubOrigin serves a JPEG-looking payload unless failing is set.
type stubOrigin struct {
	calls   atomic.Int64
	failing atomic.Bool
}

func (o *stubOrigin) Fetch(ctx context.Context, id int64) ([]byte, error) {
	o.calls.Add(1)
	if o.failing.Load() {
		return nil, errors.New("origin returned 503")
	}
	return append(append([]byte{}, jpegHeader...), []byte(fmt.Sprintf("image-%d", id))...), nil
}

func newTestImageCache(t *testing.T, origin imagecache.Fetcher) *imagecache.Cache {
	t.Helper()
	cache, err := imagecache.New(origin, imagecache.Config{TTL: time.Hour, MaxBytes: 1 << 20, FetchTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T, ps store.ProductStorer, images ImageSource) *httptest.Server {
	t.Helper()
	svc := catalog.NewService(ps, catalog.NewEngine(catalog.DefaultPageSize, catalog.DefaultMaxPage))
	handler := NewHTTPHandler(svc, ps, images, 30*time.Minute, nil)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func PtrTo[T any](v T) *T {
	return &v
}

// catalogFixture returns 25 products priced 100, 200, ... 2500.
func catalogFixture() []domain.Product {
	products := make([]domain.Product, 0, 25)
	for i := 1; i <= 25; i++ {
		products = append(products, domain.Product{
			ID:           int64(i),
			Name:         fmt.Sprintf("Товар %02d", i),
			Price:        float64(i * 100),
			Rating:       float64(i%5) + 0.5,
			ReviewsCount: int64(i * 3),
			ImageID:      int64(1000 + i),
		})
	}
	return products
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func TestHTTPHandler_ListProducts_DefaultPage(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("ListAllProducts", mock.Anything).Return(catalogFixture(), nil).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var body ProductListResponse
	res := getJSON(t, server.URL+"/api/products", &body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 25, body.Count)
	require.Len(t, body.Results, catalog.DefaultPageSize)
	assert.Equal(t, int64(1), body.Results[0].ID)
	require.NotNil(t, body.Next)
	assert.Equal(t, "page=2", *body.Next)
	assert.Nil(t, body.Previous)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_ListProducts_FiltersSortAndPage(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("ListAllProducts", mock.Anything).Return(catalogFixture(), nil).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var body ProductListResponse
	res := getJSON(t, server.URL+"/api/products?min_price=1000&max_price=2000&ordering=-price&page=2&page_size=5", &body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 11, body.Count)
	require.Len(t, body.Results, 5)
	prices := make([]float64, 0, len(body.Results))
	for _, p := range body.Results {
		prices = append(prices, p.Price)
	}
	assert.Equal(t, []float64{1500, 1400, 1300, 1200, 1100}, prices)
	require.NotNil(t, body.Next)
	assert.Equal(t, "page=3", *body.Next)
	require.NotNil(t, body.Previous)
	assert.Equal(t, "page=1", *body.Previous)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_ListProducts_OutOfRangePage(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("ListAllProducts", mock.Anything).Return(catalogFixture(), nil).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var body ProductListResponse
	res := getJSON(t, server.URL+"/api/products?page=9", &body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 25, body.Count)
	assert.NotNil(t, body.Results)
	assert.Empty(t, body.Results)
	assert.Nil(t, body.Next)
}

func TestHTTPHandler_ListProducts_BadRequests(t *testing.T) {
	testCases := []struct {
		name  string
		query string
	}{
		{"unknown ordering field", "ordering=-weight"},
		{"malformed min_price", "min_price=cheap"},
		{"negative min_price", "min_price=-1"},
		{"rating above five", "min_rating=6"},
		{"zero page", "page=0"},
		{"malformed page_size", "page_size=ten"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockStore := new(MockProductStorer)
			mockStore.On("ListAllProducts", mock.Anything).Return(catalogFixture(), nil).Maybe()
			server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

			var body ErrorResponse
			res := getJSON(t, server.URL+"/api/products?"+tc.query, &body)

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHTTPHandler_ListProducts_StoreFailure(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("ListAllProducts", mock.Anything).Return(nil, errors.New("connection reset")).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var body ErrorResponse
	res := getJSON(t, server.URL+"/api/products", &body)

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Internal server error", body.Error)
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_GetProductByID(t *testing.T) {
	mockStore := new(MockProductStorer)
	product := &domain.Product{ID: 7, Name: "Кеды", Price: 3100, SalePrice: PtrTo(2500.0), ImageID: 7}
	mockStore.On("GetProductByID", mock.Anything, int64(7)).Return(product, nil).Once()
	mockStore.On("GetProductByID", mock.Anything, int64(8)).Return(nil, store.ErrProductNotFound).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var got domain.Product
	res := getJSON(t, server.URL+"/api/products/7", &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, *product, got)

	res = getJSON(t, server.URL+"/api/products/8", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = getJSON(t, server.URL+"/api/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_GetPriceBins(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("ListAllProducts", mock.Anything).Return(catalogFixture(), nil)
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var bins []domain.PriceBin
	res := getJSON(t, server.URL+"/api/products/price-bins?bins=4&max_price=500", &bins)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, bins, 4)
	assert.Equal(t, 100.0, bins[0].Min)
	assert.Equal(t, 500.0, bins[3].Max)
	total := 0
	for _, b := range bins {
		total += b.Count
	}
	assert.GreaterOrEqual(t, total, 5, "every product lands in at least one bin")

	res = getJSON(t, server.URL+"/api/products/price-bins?bins=0", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = getJSON(t, server.URL+"/api/products/price-bins?bins=51", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	var empty []domain.PriceBin
	res = getJSON(t, server.URL+"/api/products/price-bins?min_price=100000", &empty)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestHTTPHandler_GetImage_CachesAndSetsHeaders(t *testing.T) {
	origin := &stubOrigin{}
	server := setupTestChiServer(t, new(MockProductStorer), newTestImageCache(t, origin))

	for i := 0; i < 3; i++ {
		res, err := http.Get(server.URL + "/images/123456789")
		require.NoError(t, err)
		data, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
		assert.Equal(t, "public, max-age=1800", res.Header.Get("Cache-Control"))
		assert.Contains(t, string(data), "image-123456789")
	}
	assert.EqualValues(t, 1, origin.calls.Load(), "repeat requests are served from the cache")
}

func TestHTTPHandler_GetImage_Errors(t *testing.T) {
	origin := &stubOrigin{}
	origin.failing.Store(true)
	cache := newTestImageCache(t, origin)
	server := setupTestChiServer(t, new(MockProductStorer), cache)

	res := getJSON(t, server.URL+"/images/42", nil)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	res = getJSON(t, server.URL+"/images/0", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = getJSON(t, server.URL+"/images/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	origin.failing.Store(false)
	res = getJSON(t, server.URL+"/images/42", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, "a failed fetch is not remembered")

	require.NoError(t, cache.Close())
	res = getJSON(t, server.URL+"/images/43", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestHTTPHandler_GetImage_ClientCanceled(t *testing.T) {
	origin := imagecache.FetcherFunc(func(ctx context.Context, id int64) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cache := newTestImageCache(t, origin)
	handler := NewHTTPHandler(catalog.NewService(new(MockProductStorer), nil), new(MockProductStorer), cache, time.Minute, nil)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/images/42", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Body.String(), "nothing is written for a client that went away")
	assert.Equal(t, uint64(0), cache.Stats().OriginFailures)
}

func TestHTTPHandler_Healthz(t *testing.T) {
	mockStore := new(MockProductStorer)
	mockStore.On("Ping", mock.Anything).Return(errors.New("db down")).Once()
	server := setupTestChiServer(t, mockStore, newTestImageCache(t, &stubOrigin{}))

	var body map[string]interface{}
	res := getJSON(t, server.URL+"/api/v1/healthz", &body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "unhealthy", body["database"])
	assert.Contains(t, body, "imageCache")
	mockStore.AssertExpectations(t)
}

func TestHTTPHandler_Metrics(t *testing.T) {
	origin := &stubOrigin{}
	server := setupTestChiServer(t, new(MockProductStorer), newTestImageCache(t, origin))

	res := getJSON(t, server.URL+"/images/5", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "catalog_image_cache_misses_total")
}
