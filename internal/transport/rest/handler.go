// Package rest provides HTTP handlers for the catalog API.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	cerrors "github.com/gokai019/catalog/internal/errors"
	"github.com/gokai019/catalog/internal/service"
	"github.com/gokai019/catalog/pkg/web"
)

// maxUploadBytes bounds the size of multipart bodies carrying product images.
const maxUploadBytes = 10 << 20

// ProductHandler exposes the product endpoints.
type ProductHandler struct {
	service  service.ProductService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewProductHandler creates a new ProductHandler with the provided service.
func NewProductHandler(service service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the product endpoints.
func (h *ProductHandler) RegisterRoutes(r *chi.Mux) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.Patch("/", h.Update)
			r.Delete("/", h.DeleteByID)
			r.Post("/prices", h.AddPrice)
			r.Delete("/prices/{storeId}", h.RemovePrice)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// Create handles the creation of a new product with its price list. The body
// is either JSON or a multipart form whose image file is merged into the DTO.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productCreateDto, err := decodeCreateRequest(r)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to create product", "description", productCreateDto.Description)
	if !h.validateStruct(w, r, mLogger, productCreateDto) {
		return
	}

	newProduct, err := h.service.Create(r.Context(), productCreateDto)
	if err != nil {
		switch {
		case errors.Is(err, cerrors.ErrNoPrices):
			mLogger.WarnContext(r.Context(), "Product create rejected: empty price list")
			web.RespondError(w, mLogger, http.StatusBadRequest, "At least one price must be provided")
		case errors.Is(err, cerrors.ErrDuplicateStores):
			mLogger.WarnContext(r.Context(), "Product create rejected: duplicate stores in request")
			web.RespondError(w, mLogger, http.StatusConflict, "Duplicate store prices in request")
		case errors.Is(err, cerrors.ErrPriceConflict):
			mLogger.WarnContext(r.Context(), "Product create rejected: conflicting prices", "error", err)
			web.RespondError(w, mLogger, http.StatusConflict, conflictMessage(err))
		case errors.Is(err, cerrors.ErrStoreNotFound):
			mLogger.WarnContext(r.Context(), "Product create rejected: unknown store", "error", err)
			web.RespondError(w, mLogger, http.StatusNotFound, "Store not found")
		default:
			mLogger.ErrorContext(r.Context(), "Error creating product", "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", newProduct.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, newProduct)
}

// FindAll retrieves a page of products matching the query filters.
func (h *ProductHandler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)

	filter := service.ProductFilterDto{Page: 1, Limit: 10, SortBy: "id", SortOrder: "ASC"}
	id, ok := web.QueryIntPtr(r, w, mLogger, "id")
	if !ok {
		return
	}
	filter.ID = id
	filter.Description = web.QueryString(r, "description")
	cost, ok := web.QueryFloatPtr(r, w, mLogger, "cost")
	if !ok {
		return
	}
	filter.Cost = cost
	salePrice, ok := web.QueryFloatPtr(r, w, mLogger, "salePrice")
	if !ok {
		return
	}
	filter.SalePrice = salePrice
	page, ok := web.QueryInt(r, w, mLogger, "page", filter.Page)
	if !ok {
		return
	}
	filter.Page = page
	limit, ok := web.QueryInt(r, w, mLogger, "limit", filter.Limit)
	if !ok {
		return
	}
	filter.Limit = limit
	if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
		filter.SortBy = sortBy
	}
	if sortOrder := r.URL.Query().Get("sortOrder"); sortOrder != "" {
		filter.SortOrder = sortOrder
	}
	if !h.validateStruct(w, r, mLogger, filter) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find products", "page", filter.Page, "limit", filter.Limit)
	productPage, err := h.service.FindAll(r.Context(), filter)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error retrieving product list", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", productPage.Count)
	web.RespondJSON(w, mLogger, http.StatusOK, productPage)
}

// FindByID retrieves a product by its ID.
func (h *ProductHandler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger, "id")
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, cerrors.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve product with ID %d", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// Update applies a partial product update, optionally synchronizing prices.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger, "id")
	if !ok {
		return
	}
	productUpdateDto, err := decodeUpdateRequest(r)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to update product", "ID", id)
	if !h.validateStruct(w, r, mLogger, productUpdateDto) {
		return
	}

	updated, err := h.service.Update(r.Context(), id, productUpdateDto)
	if err != nil {
		switch {
		case errors.Is(err, cerrors.ErrProductNotFound):
			mLogger.WarnContext(r.Context(), "Product not found for update", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
		case errors.Is(err, cerrors.ErrNoPrices):
			mLogger.WarnContext(r.Context(), "Product update rejected: empty price list", "ID", id)
			web.RespondError(w, mLogger, http.StatusBadRequest, "At least one price must be provided")
		case errors.Is(err, cerrors.ErrPriceConflict):
			mLogger.WarnContext(r.Context(), "Product update rejected: conflicting prices", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusConflict, conflictMessage(err))
		case errors.Is(err, cerrors.ErrStoreNotFound):
			mLogger.WarnContext(r.Context(), "Product update rejected: unknown store", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusNotFound, "Store not found")
		default:
			mLogger.ErrorContext(r.Context(), "Error updating product", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to update product with ID %d", id))
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteByID deletes a product by its ID.
func (h *ProductHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger, "id")
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, cerrors.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found for deletion", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error deleting product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to delete product with ID %d", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// AddPrice creates a price row for a product.
func (h *ProductHandler) AddPrice(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger, "id")
	if !ok {
		return
	}
	var priceDto service.ProductPriceDto
	if err := json.NewDecoder(r.Body).Decode(&priceDto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, priceDto) {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to add price", "ID", id, "storeId", priceDto.StoreID)
	created, err := h.service.AddPrice(r.Context(), id, priceDto)
	if err != nil {
		switch {
		case errors.Is(err, cerrors.ErrProductNotFound):
			mLogger.WarnContext(r.Context(), "Product not found for price", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
		case errors.Is(err, cerrors.ErrPriceConflict):
			mLogger.WarnContext(r.Context(), "Price already exists", "ID", id, "storeId", priceDto.StoreID)
			web.RespondError(w, mLogger, http.StatusConflict, "A price for this store already exists")
		case errors.Is(err, cerrors.ErrStoreNotFound):
			mLogger.WarnContext(r.Context(), "Store not found for price", "ID", id, "storeId", priceDto.StoreID)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Store with ID %d not found", priceDto.StoreID))
		default:
			mLogger.ErrorContext(r.Context(), "Error adding price", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to add price for product with ID %d", id))
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Price added successfully", "ID", created.ID, "productId", id)
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// RemovePrice deletes the price row identified by (product, store).
func (h *ProductHandler) RemovePrice(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseID(w, r, mLogger, "id")
	if !ok {
		return
	}
	storeID, ok := web.ParseID(w, r, mLogger, "storeId")
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to remove price", "productId", productID, "storeId", storeID)
	if err := h.service.RemovePrice(r.Context(), productID, storeID); err != nil {
		if errors.Is(err, cerrors.ErrPriceNotFound) {
			mLogger.WarnContext(r.Context(), "Price not found for deletion", "productId", productID, "storeId", storeID)
			web.RespondError(w, mLogger, http.StatusNotFound,
				fmt.Sprintf("Price for product ID %d and store ID %d not found", productID, storeID))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error removing price", "productId", productID, "storeId", storeID, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError,
			fmt.Sprintf("Failed to remove price for product ID %d and store ID %d", productID, storeID))
		return
	}
	mLogger.InfoContext(r.Context(), "Price removed successfully", "productId", productID, "storeId", storeID)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck is a simple health check endpoint.
func (h *ProductHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// validateStruct validates a DTO and responds with field-level violations.
// Returns false when validation failed and a response was written.
func (h *ProductHandler) validateStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dto any) bool {
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// conflictMessage surfaces the offending store ids when available.
func conflictMessage(err error) string {
	var conflict *cerrors.PriceConflictError
	if errors.As(err, &conflict) {
		return fmt.Sprintf("Prices already exist for stores: %s", conflict.StoreList())
	}
	return "A price for this store already exists"
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *ProductHandler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}

// decodeCreateRequest decodes a product create body. Multipart forms carry
// the scalar fields as form values, the price list as a JSON-encoded "prices"
// field and the image as an uploaded file merged into the DTO.
func decodeCreateRequest(r *http.Request) (service.ProductCreateDto, error) {
	var dto service.ProductCreateDto
	if !isMultipart(r) {
		err := json.NewDecoder(r.Body).Decode(&dto)
		return dto, err
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return dto, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	dto.Description = r.FormValue("description")
	if value := r.FormValue("cost"); value != "" {
		cost, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return dto, fmt.Errorf("invalid cost: %w", err)
		}
		dto.Cost = &cost
	}
	if value := r.FormValue("prices"); value != "" {
		if err := json.Unmarshal([]byte(value), &dto.Prices); err != nil {
			return dto, fmt.Errorf("invalid prices: %w", err)
		}
	}
	image, err := readImageFile(r)
	if err != nil {
		return dto, err
	}
	dto.Image = image
	return dto, nil
}

// decodeUpdateRequest decodes a product update body, keeping absent fields
// nil so the service can apply a partial update.
func decodeUpdateRequest(r *http.Request) (service.ProductUpdateDto, error) {
	var dto service.ProductUpdateDto
	if !isMultipart(r) {
		err := json.NewDecoder(r.Body).Decode(&dto)
		return dto, err
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return dto, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	dto.Description = formValue(r, "description")
	if value := formValue(r, "cost"); value != nil {
		cost, err := strconv.ParseFloat(*value, 64)
		if err != nil {
			return dto, fmt.Errorf("invalid cost: %w", err)
		}
		dto.Cost = &cost
	}
	if value := formValue(r, "prices"); value != nil {
		var prices []service.ProductPriceDto
		if err := json.Unmarshal([]byte(*value), &prices); err != nil {
			return dto, fmt.Errorf("invalid prices: %w", err)
		}
		dto.Prices = &prices
	}
	image, err := readImageFile(r)
	if err != nil {
		return dto, err
	}
	dto.Image = image
	return dto, nil
}

func isMultipart(r *http.Request) bool {
	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && contentType == "multipart/form-data"
}

// formValue distinguishes an absent multipart field from an empty one.
func formValue(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func readImageFile(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	defer func() { _ = file.Close() }()
	image, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return image, nil
}
