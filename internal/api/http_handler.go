package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"catalog-browse-service/internal/catalog"
	"catalog-browse-service/internal/domain"
	"catalog-browse-service/internal/imagecache"
	"catalog-browse-service/internal/store"
)

const serviceName = "CatalogBrowseService"

// ProductQuerier answers filtered, sorted and paginated product queries.
type ProductQuerier interface {
	List(ctx context.Context, c domain.QueryCriteria) (domain.QueryResult, error)
	PriceBins(ctx context.Context, c domain.QueryCriteria, bins int) ([]domain.PriceBin, error)
}

// ImageSource resolves product images, usually through the image cache.
type ImageSource interface {
	Resolve(ctx context.Context, id int64) ([]byte, error)
	Stats() imagecache.Stats
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	products     ProductQuerier
	productStore store.ProductStorer
	images       ImageSource
	imageMaxAge  time.Duration
	logger       log.FieldLogger
	validate     *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. imageMaxAge is
// the browser cache lifetime advertised on image responses.
func NewHTTPHandler(products ProductQuerier, ps store.ProductStorer, images ImageSource, imageMaxAge time.Duration, logger log.FieldLogger) *HTTPHandler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HTTPHandler{
		products:     products,
		productStore: ps,
		images:       images,
		imageMaxAge:  imageMaxAge,
		logger:       logger,
		validate:     validator.New(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.WithError(err).Error("Failed to encode JSON response")
		}
	}
}

// respondWithDomainError maps service errors onto HTTP status codes.
func (h *HTTPHandler) respondWithDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"op":        op,
		"requestId": middleware.GetReqID(r.Context()),
	})
	switch {
	case errors.Is(err, catalog.ErrInvalidCriteria), errors.Is(err, errBadParam):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrProductNotFound):
		respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
	case errors.Is(err, imagecache.ErrInvalidImageID):
		respondWithError(w, http.StatusBadRequest, imagecache.ErrInvalidImageID.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response. Checked before the
		// origin case because a fetch cut short by the client wraps context.Canceled.
		entry.Debug("Request canceled")
	case errors.Is(err, imagecache.ErrOriginUnavailable):
		entry.Warn("Image origin unavailable")
		respondWithError(w, http.StatusBadGateway, "Failed to fetch image")
	case errors.Is(err, imagecache.ErrClosed):
		respondWithError(w, http.StatusServiceUnavailable, "Service is shutting down")
	default:
		entry.Error("Request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// --- Product Handlers ---

// ProductListResponse is one page of products in the dashboard's paging format.
// Next and Previous hold the query of the neighbouring page or null.
type ProductListResponse struct {
	Results  []domain.Product `json:"results"`
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	input, err := parseProductQuery(r.URL.Query())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	criteria, err := input.Criteria()
	if err != nil {
		h.respondWithDomainError(w, r, "ListProducts", err)
		return
	}

	result, err := h.products.List(r.Context(), criteria)
	if err != nil {
		h.respondWithDomainError(w, r, "ListProducts", err)
		return
	}

	response := ProductListResponse{
		Results: result.Items,
		Count:   result.TotalCount,
	}
	if response.Results == nil {
		response.Results = []domain.Product{}
	}
	if result.HasNext() {
		next := fmt.Sprintf("page=%d", result.Page+1)
		response.Next = &next
	}
	if result.HasPrevious() {
		prev := fmt.Sprintf("page=%d", result.Page-1)
		response.Previous = &prev
	}
	respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		h.respondWithDomainError(w, r, "GetProductByID", err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) GetPriceBins(w http.ResponseWriter, r *http.Request) {
	input, err := parsePriceBinsQuery(r.URL.Query())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	criteria, err := input.Criteria()
	if err != nil {
		h.respondWithDomainError(w, r, "GetPriceBins", err)
		return
	}

	bins, err := h.products.PriceBins(r.Context(), criteria, input.BinCount())
	if err != nil {
		h.respondWithDomainError(w, r, "GetPriceBins", err)
		return
	}
	if bins == nil {
		bins = []domain.PriceBin{}
	}
	respondWithJSON(w, http.StatusOK, bins)
}

// --- Image Handlers ---

func (h *HTTPHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "imageId")
	imageID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || imageID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid image ID format")
		return
	}

	data, err := h.images.Resolve(r.Context(), imageID)
	if err != nil {
		h.respondWithDomainError(w, r, "GetImage", err)
		return
	}

	contentType := mimetype.Detect(data)
	ct := "image/jpeg"
	if contentType.Is("image/jpeg") || contentType.Is("image/png") || contentType.Is("image/webp") {
		ct = contentType.String()
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int64(h.imageMaxAge/time.Second)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.WithError(err).WithField("imageId", imageID).Debug("Failed to write image response")
	}
}

// --- Health ---

func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := h.productStore.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
		h.logger.WithError(err).Warn("Health check store ping failed")
	}

	// Always 200; the payload carries the detailed status.
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"serviceName": serviceName,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"database":    dbStatus,
		"imageCache":  h.images.Stats(),
	})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts) // GET /api/products
		// Before {productId} so "price-bins" is not treated as an ID
		r.Get("/price-bins", h.GetPriceBins)
		r.Get("/{productId}", h.GetProductByID)
	})

	r.Get("/images/{imageId}", h.GetImage)
}
