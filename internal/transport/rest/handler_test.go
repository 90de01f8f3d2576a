package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cerrors "github.com/gokai019/catalog/internal/errors"
	"github.com/gokai019/catalog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProductService is a mock implementation of the ProductService interface.
// It records the DTOs it receives so tests can verify request decoding.
type mockProductService struct {
	product *service.ProductDto
	page    *service.ProductPageDto
	price   *service.PriceDto
	error   error

	createDto *service.ProductCreateDto
	updateDto *service.ProductUpdateDto
	filter    *service.ProductFilterDto
}

func (m *mockProductService) Create(_ context.Context, product service.ProductCreateDto) (*service.ProductDto, error) {
	m.createDto = &product
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockProductService) FindAll(_ context.Context, filter service.ProductFilterDto) (*service.ProductPageDto, error) {
	m.filter = &filter
	if m.error != nil {
		return nil, m.error
	}
	return m.page, nil
}

func (m *mockProductService) FindByID(_ context.Context, _ int64) (*service.ProductDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockProductService) Update(_ context.Context, _ int64, product service.ProductUpdateDto) (*service.ProductDto, error) {
	m.updateDto = &product
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockProductService) DeleteByID(_ context.Context, _ int64) error {
	return m.error
}

func (m *mockProductService) AddPrice(_ context.Context, _ int64, _ service.ProductPriceDto) (*service.PriceDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.price, nil
}

func (m *mockProductService) RemovePrice(_ context.Context, _, _ int64) error {
	return m.error
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// toJSON is a helper function to convert a struct to JSON string
func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	bytes, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal to JSON: %v", err)
	}
	return string(bytes)
}

func newTestProductHandler(mock *mockProductService) *ProductHandler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewProductHandler(mock, logger)
}

func Test_ProductAPI_Create(t *testing.T) {
	created := &service.ProductDto{
		ID:          1,
		Description: "Notebook",
		Cost:        floatPtr(10.5),
		Prices:      []service.PriceDto{{ID: 10, ProductID: 1, StoreID: 2, SalePrice: 19.99}},
	}
	testCases := []struct {
		name         string
		mockService  mockProductService
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product created",
			mockService:  mockProductService{product: created},
			body:         `{"description":"Notebook","cost":10.5,"prices":[{"storeId":2,"salePrice":19.99}]}`,
			expectedCode: http.StatusCreated,
			expectedBody: toJSON(t, created),
		},
		{
			name:         "Error - empty price list",
			mockService:  mockProductService{error: cerrors.ErrNoPrices},
			body:         `{"description":"Notebook","prices":[]}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "At least one price must be provided"}),
		},
		{
			name:         "Error - duplicate stores in request",
			mockService:  mockProductService{error: cerrors.ErrDuplicateStores},
			body:         `{"description":"Notebook","prices":[{"storeId":2,"salePrice":10},{"storeId":2,"salePrice":20}]}`,
			expectedCode: http.StatusConflict,
			expectedBody: toJSON(t, ErrorResponse{Error: "Duplicate store prices in request"}),
		},
		{
			name:         "Error - conflicting prices",
			mockService:  mockProductService{error: &cerrors.PriceConflictError{StoreIDs: []int64{2, 3}}},
			body:         `{"description":"Notebook","prices":[{"storeId":2,"salePrice":10},{"storeId":3,"salePrice":20}]}`,
			expectedCode: http.StatusConflict,
			expectedBody: toJSON(t, ErrorResponse{Error: "Prices already exist for stores: 2, 3"}),
		},
		{
			name:         "Error - unknown store",
			mockService:  mockProductService{error: cerrors.ErrStoreNotFound},
			body:         `{"description":"Notebook","prices":[{"storeId":99,"salePrice":10}]}`,
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Store not found"}),
		},
		{
			name:         "Error - invalid body",
			mockService:  mockProductService{},
			body:         `{"description":`,
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "Invalid request body"}),
		},
		{
			name:         "Error - missing description",
			mockService:  mockProductService{},
			body:         `{"prices":[{"storeId":2,"salePrice":10}]}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Description":"failed on rule: required"}}`,
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("service unavailable")},
			body:         `{"description":"Notebook","prices":[{"storeId":2,"salePrice":10}]}`,
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to create product"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			// when
			api.Create(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

// Multipart bodies carry the scalar fields as form values, the price list as
// a JSON-encoded field and the image as an uploaded file.
func Test_ProductAPI_Create_Multipart(t *testing.T) {
	// given
	mockService := &mockProductService{product: &service.ProductDto{ID: 1, Description: "Notebook"}}
	api := newTestProductHandler(mockService)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("description", "Notebook"))
	require.NoError(t, writer.WriteField("cost", "10.5"))
	require.NoError(t, writer.WriteField("prices", `[{"storeId":2,"salePrice":19.99}]`))
	part, err := writer.CreateFormFile("image", "notebook.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/products", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()

	// when
	api.Create(rr, req)

	// then
	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, mockService.createDto)
	assert.Equal(t, "Notebook", mockService.createDto.Description)
	require.NotNil(t, mockService.createDto.Cost)
	assert.Equal(t, 10.5, *mockService.createDto.Cost)
	require.Len(t, mockService.createDto.Prices, 1)
	assert.Equal(t, int64(2), mockService.createDto.Prices[0].StoreID)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, mockService.createDto.Image)
}

func Test_ProductAPI_FindAll(t *testing.T) {
	page := &service.ProductPageDto{
		Data:  []service.ProductDto{{ID: 1, Description: "Notebook", Prices: []service.PriceDto{}}},
		Count: 1,
	}
	testCases := []struct {
		name         string
		mockService  mockProductService
		query        string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - default paging",
			mockService:  mockProductService{page: page},
			query:        "",
			expectedCode: http.StatusOK,
			expectedBody: toJSON(t, page),
		},
		{
			name:         "Success - filtered",
			mockService:  mockProductService{page: page},
			query:        "?description=note&cost=10.5&salePrice=19.99&page=2&limit=5&sortBy=cost&sortOrder=DESC",
			expectedCode: http.StatusOK,
			expectedBody: toJSON(t, page),
		},
		{
			name:         "Error - page is not a number",
			mockService:  mockProductService{},
			query:        "?page=abc",
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "Invalid page number: abc"}),
		},
		{
			name:         "Error - page below 1",
			mockService:  mockProductService{},
			query:        "?page=0",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Page":"failed on rule: gte"}}`,
		},
		{
			name:         "Error - unknown sort column",
			mockService:  mockProductService{},
			query:        "?sortBy=image",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"SortBy":"failed on rule: oneof"}}`,
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("service unavailable")},
			query:        "",
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to fetch products"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodGet, "/products"+tc.query, nil)
			rr := httptest.NewRecorder()

			// when
			api.FindAll(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_ProductAPI_FindAll_Defaults(t *testing.T) {
	// given
	mockService := &mockProductService{page: &service.ProductPageDto{Data: []service.ProductDto{}}}
	api := newTestProductHandler(mockService)
	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rr := httptest.NewRecorder()

	// when
	api.FindAll(rr, req)

	// then
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, mockService.filter)
	assert.Equal(t, int64(1), mockService.filter.Page)
	assert.Equal(t, int64(10), mockService.filter.Limit)
	assert.Equal(t, "id", mockService.filter.SortBy)
	assert.Equal(t, "ASC", mockService.filter.SortOrder)
	assert.Nil(t, mockService.filter.ID)
	assert.Nil(t, mockService.filter.Description)
}

func Test_ProductAPI_FindByID(t *testing.T) {
	found := &service.ProductDto{ID: 1, Description: "Notebook", Prices: []service.PriceDto{}}
	testCases := []struct {
		name         string
		mockService  mockProductService
		productID    string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product found",
			mockService:  mockProductService{product: found},
			productID:    "1",
			expectedCode: http.StatusOK,
			expectedBody: toJSON(t, found),
		},
		{
			name:         "Error - invalid id",
			mockService:  mockProductService{},
			productID:    "abc",
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "Invalid ID: abc"}),
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: cerrors.ErrProductNotFound},
			productID:    "1",
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product with ID 1 not found"}),
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("service unavailable")},
			productID:    "1",
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to retrieve product with ID 1"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodGet, "/products/"+tc.productID, nil)
			req.SetPathValue("id", tc.productID)
			rr := httptest.NewRecorder()

			// when
			api.FindByID(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_ProductAPI_Update(t *testing.T) {
	updated := &service.ProductDto{ID: 1, Description: "Updated", Prices: []service.PriceDto{}}
	testCases := []struct {
		name         string
		mockService  mockProductService
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product updated",
			mockService:  mockProductService{product: updated},
			body:         `{"description":"Updated"}`,
			expectedCode: http.StatusOK,
			expectedBody: toJSON(t, updated),
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: cerrors.ErrProductNotFound},
			body:         `{"description":"Updated"}`,
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product with ID 1 not found"}),
		},
		{
			name:         "Error - empty price list",
			mockService:  mockProductService{error: cerrors.ErrNoPrices},
			body:         `{"prices":[]}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "At least one price must be provided"}),
		},
		{
			name:         "Error - conflicting prices",
			mockService:  mockProductService{error: &cerrors.PriceConflictError{StoreIDs: []int64{2}}},
			body:         `{"prices":[{"storeId":2,"salePrice":10}]}`,
			expectedCode: http.StatusConflict,
			expectedBody: toJSON(t, ErrorResponse{Error: "Prices already exist for stores: 2"}),
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("service unavailable")},
			body:         `{"description":"Updated"}`,
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to update product with ID 1"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodPatch, "/products/1", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req.SetPathValue("id", "1")
			rr := httptest.NewRecorder()

			// when
			api.Update(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_ProductAPI_DeleteByID(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product deleted",
			mockService:  mockProductService{},
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: cerrors.ErrProductNotFound},
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product with ID 1 not found"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodDelete, "/products/1", nil)
			req.SetPathValue("id", "1")
			rr := httptest.NewRecorder()

			// when
			api.DeleteByID(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			} else {
				assert.Empty(t, rr.Body.String())
			}
		})
	}
}

func Test_ProductAPI_AddPrice(t *testing.T) {
	created := &service.PriceDto{ID: 10, ProductID: 1, StoreID: 2, SalePrice: 19.99}
	testCases := []struct {
		name         string
		mockService  mockProductService
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - price added",
			mockService:  mockProductService{price: created},
			body:         `{"storeId":2,"salePrice":19.99}`,
			expectedCode: http.StatusCreated,
			expectedBody: toJSON(t, created),
		},
		{
			name:         "Error - price already exists",
			mockService:  mockProductService{error: &cerrors.PriceConflictError{StoreIDs: []int64{2}}},
			body:         `{"storeId":2,"salePrice":19.99}`,
			expectedCode: http.StatusConflict,
			expectedBody: toJSON(t, ErrorResponse{Error: "A price for this store already exists"}),
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: cerrors.ErrProductNotFound},
			body:         `{"storeId":2,"salePrice":19.99}`,
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product with ID 1 not found"}),
		},
		{
			name:         "Error - store not found",
			mockService:  mockProductService{error: cerrors.ErrStoreNotFound},
			body:         `{"storeId":2,"salePrice":19.99}`,
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Store with ID 2 not found"}),
		},
		{
			name:         "Error - non-positive sale price",
			mockService:  mockProductService{},
			body:         `{"storeId":2,"salePrice":0}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"SalePrice":"failed on rule: required"}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodPost, "/products/1/prices", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req.SetPathValue("id", "1")
			rr := httptest.NewRecorder()

			// when
			api.AddPrice(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_ProductAPI_RemovePrice(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - price removed",
			mockService:  mockProductService{},
			expectedCode: http.StatusNoContent,
		},
		{
			name:         "Error - price not found",
			mockService:  mockProductService{error: cerrors.ErrPriceNotFound},
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Price for product ID 1 and store ID 2 not found"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestProductHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodDelete, "/products/1/prices/2", nil)
			req.SetPathValue("id", "1")
			req.SetPathValue("storeId", "2")
			rr := httptest.NewRecorder()

			// when
			api.RemovePrice(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			} else {
				assert.Empty(t, rr.Body.String())
			}
		})
	}
}

func floatPtr(v float64) *float64 { return &v }
