// Package api exposes the dashboard HTTP interface over the product
// store: list, search, inspect, edit, and delete tracked products.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/store"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// ProductRepository is the store surface the dashboard reads and edits.
type ProductRepository interface {
	List(ctx context.Context, site string, limit, offset int) ([]store.StoredProduct, error)
	Count(ctx context.Context, site string) (int, error)
	Search(ctx context.Context, q string, limit, offset int) ([]store.StoredProduct, error)
	SearchCount(ctx context.Context, q string) (int, error)
	Get(ctx context.Context, id int64, site string) (store.StoredProduct, error)
	Update(ctx context.Context, p store.StoredProduct) error
	Delete(ctx context.Context, id int64, site string) error
}

// Server wires HTTP handlers to the product store.
type Server struct {
	router   chi.Router
	products ProductRepository
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(products ProductRepository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		products: products,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", s.listProducts)
		r.Get("/search", s.searchProducts)
		r.Get("/{product_id}", s.getProduct)
		r.Put("/{product_id}", s.updateProduct)
		r.Delete("/{product_id}", s.deleteProduct)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type productPage struct {
	Products []store.StoredProduct `json:"products"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PerPage  int                   `json:"per_page"`
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	site := r.URL.Query().Get("site")

	products, err := s.products.List(r.Context(), site, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	total, err := s.products.Count(r.Context(), site)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count products")
		return
	}
	if products == nil {
		products = []store.StoredProduct{}
	}
	writeJSON(w, http.StatusOK, productPage{
		Products: products,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	})
}

func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	page, perPage := pagination(r)

	products, err := s.products.Search(r.Context(), q, perPage, (page-1)*perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	total, err := s.products.SearchCount(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if products == nil {
		products = []store.StoredProduct{}
	}
	writeJSON(w, http.StatusOK, productPage{
		Products: products,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := s.products.Get(r.Context(), id, r.URL.Query().Get("site"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type updateProductRequest struct {
	Handle              string `json:"handle"`
	Title               string `json:"title"`
	Available           bool   `json:"available"`
	Price               string `json:"price"`
	Vendor              string `json:"vendor"`
	URL                 string `json:"url"`
	Category            string `json:"category"`
	IgnoreNotifications bool   `json:"ignore_notifications"`
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	site := r.URL.Query().Get("site")
	if site == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter site")
		return
	}

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p := store.StoredProduct{
		Row: store.Row{
			ID:        id,
			Site:      site,
			Handle:    req.Handle,
			Title:     req.Title,
			Available: req.Available,
			Price:     req.Price,
			Vendor:    req.Vendor,
			URL:       req.URL,
			Category:  req.Category,
		},
		IgnoreNotifications: req.IgnoreNotifications,
	}
	err := s.products.Update(r.Context(), p)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	site := r.URL.Query().Get("site")
	if site == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter site")
		return
	}

	err := s.products.Delete(r.Context(), id, site)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
