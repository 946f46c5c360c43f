// Package api exposes the acquisition engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/CRTYPUBG/trendcord/internal/database"
	"github.com/CRTYPUBG/trendcord/internal/models"
	"github.com/CRTYPUBG/trendcord/internal/monitor"
	"github.com/CRTYPUBG/trendcord/internal/resolver"
)

// ProductService resolves references and runs product lookups.
// *engine.Engine satisfies it.
type ProductService interface {
	Resolve(ctx context.Context, input string) (*models.ProductReference, error)
	GetProductInfo(ctx context.Context, input string) *models.ProductSnapshot
}

// ProductStore is the tracked-product persistence surface. *database.DB
// satisfies it.
type ProductStore interface {
	InsertTrackedProduct(ctx context.Context, p *database.TrackedProduct) error
	GetTrackedProduct(ctx context.Context, productID string) (*database.TrackedProduct, error)
	ListTrackedProducts(ctx context.Context) ([]*database.TrackedProduct, error)
	DeleteTrackedProduct(ctx context.Context, productID string) (bool, error)
	GetPriceHistory(ctx context.Context, productID string, limit int) ([]*database.PricePoint, error)
}

// StructureMonitor is the site-structure monitoring surface.
// *monitor.Monitor satisfies it.
type StructureMonitor interface {
	RunCheck(ctx context.Context) (*monitor.Delta, error)
	LastSnapshot() (*monitor.Snapshot, error)
	Running() bool
}

// OutboxStats reports outbox backlog sizes for the health endpoint.
// *database.Relay satisfies it.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	service ProductService
	store   ProductStore
	monitor StructureMonitor
	outbox  OutboxStats
	logger  *slog.Logger
}

func NewHandlers(service ProductService, store ProductStore, mon StructureMonitor, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		service: service,
		store:   store,
		monitor: mon,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// NewRouter wires the handlers into a chi router with the standard
// middleware stack.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Post("/lookup", h.Lookup)
			r.Post("/resolve", h.ResolveReference)
			r.Post("/", h.TrackProduct)
			r.Get("/", h.ListProducts)
			r.Delete("/{productID}", h.UntrackProduct)
			r.Get("/{productID}/history", h.PriceHistory)
		})
		r.Route("/monitor", func(r chi.Router) {
			r.Get("/structure", h.Structure)
			r.Post("/check", h.TriggerCheck)
		})
	})

	return r
}

// LookupRequest asks for a live product lookup.
type LookupRequest struct {
	Reference string `json:"reference"`
}

// Lookup resolves a reference and runs the acquisition chain.
func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" {
		h.respondError(w, http.StatusBadRequest, "reference is required")
		return
	}

	snap := h.service.GetProductInfo(r.Context(), req.Reference)
	status := http.StatusOK
	if !snap.Success && snap.Availability != models.AvailabilitySoldOut {
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, snap)
}

// ResolveReference resolves a reference without running a lookup.
func (h *Handlers) ResolveReference(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" {
		h.respondError(w, http.StatusBadRequest, "reference is required")
		return
	}

	ref, err := h.service.Resolve(r.Context(), req.Reference)
	if err != nil {
		if errors.Is(err, resolver.ErrNotResolvable) {
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("failed to resolve reference", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to resolve reference")
		return
	}
	h.respondJSON(w, http.StatusOK, ref)
}

// TrackRequest asks for a product to be tracked.
type TrackRequest struct {
	Reference string `json:"reference"`
	AddedBy   string `json:"added_by"`
}

// TrackProduct looks a product up and stores it for periodic checking.
func (h *Handlers) TrackProduct(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reference == "" {
		h.respondError(w, http.StatusBadRequest, "reference is required")
		return
	}

	snap := h.service.GetProductInfo(r.Context(), req.Reference)
	if !snap.Success {
		h.respondError(w, http.StatusUnprocessableEntity, "product could not be acquired: "+snap.Error)
		return
	}

	product := &database.TrackedProduct{
		ProductID:     snap.ProductID,
		Name:          snap.Name,
		URL:           snap.URL,
		ImageURL:      snap.ImageURL,
		CurrentPrice:  snap.CurrentPrice,
		OriginalPrice: snap.OriginalPrice,
		Availability:  snap.Availability,
		Source:        snap.Source,
		AddedBy:       req.AddedBy,
	}
	if err := h.store.InsertTrackedProduct(r.Context(), product); err != nil {
		h.logger.Error("failed to track product", "product_id", snap.ProductID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to track product")
		return
	}

	h.respondJSON(w, http.StatusCreated, product)
}

// ListProducts returns all tracked products.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListTrackedProducts(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []*database.TrackedProduct{}
	}
	h.respondJSON(w, http.StatusOK, products)
}

// UntrackProduct stops tracking a product.
func (h *Handlers) UntrackProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	deleted, err := h.store.DeleteTrackedProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to untrack product", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to untrack product")
		return
	}
	if !deleted {
		h.respondError(w, http.StatusNotFound, "product not tracked")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "product_id": productID})
}

// PriceHistory returns recent price points for a tracked product.
func (h *Handlers) PriceHistory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	product, err := h.store.GetTrackedProduct(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get product", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "product not tracked")
		return
	}

	points, err := h.store.GetPriceHistory(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("failed to get price history", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get price history")
		return
	}
	if points == nil {
		points = []*database.PricePoint{}
	}
	h.respondJSON(w, http.StatusOK, points)
}

// Structure returns the last recorded site-structure snapshot.
func (h *Handlers) Structure(w http.ResponseWriter, r *http.Request) {
	snap, err := h.monitor.LastSnapshot()
	if err != nil {
		h.logger.Error("failed to load structure snapshot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load structure snapshot")
		return
	}
	if snap == nil {
		h.respondError(w, http.StatusNotFound, "no structure snapshot recorded yet")
		return
	}
	h.respondJSON(w, http.StatusOK, snap)
}

// TriggerCheck starts a structure check in the background. A check
// already in flight yields 409.
func (h *Handlers) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if h.monitor.Running() {
		h.respondError(w, http.StatusConflict, "structure check already running")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := h.monitor.RunCheck(ctx); err != nil && !errors.Is(err, monitor.ErrCheckRunning) {
			h.logger.Error("triggered structure check failed", "error", err)
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "check started"})
}

// Health reports service and outbox backlog state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, _ := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, _ := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
