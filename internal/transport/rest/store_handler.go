package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gokai019/catalog/internal/service"
	"github.com/gokai019/catalog/pkg/web"
)

// StoreHandler exposes the store endpoints.
type StoreHandler struct {
	service  service.StoreService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewStoreHandler creates a new StoreHandler with the provided service.
func NewStoreHandler(service service.StoreService, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the store endpoints.
func (h *StoreHandler) RegisterRoutes(r *chi.Mux) {
	r.Route("/stores", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)
	})
}

// FindAll retrieves every registered store.
func (h *StoreHandler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	mLogger.DebugContext(r.Context(), "Received request to find stores")
	stores, err := h.service.FindAll(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving store list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch stores")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, stores)
}

// Create handles the creation of a new store.
func (h *StoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var storeCreateDto service.StoreCreateDto
	if err := json.NewDecoder(r.Body).Decode(&storeCreateDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(storeCreateDto); err != nil {
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Store description is required")
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to create store", "description", storeCreateDto.Description)
	newStore, err := h.service.Create(r.Context(), storeCreateDto)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error creating store", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create store")
		return
	}
	mLogger.InfoContext(r.Context(), "Store created successfully", "ID", newStore.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, newStore)
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *StoreHandler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}
