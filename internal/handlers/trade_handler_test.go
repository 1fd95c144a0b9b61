package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
	"cryptosim/internal/pagination"
	"cryptosim/internal/services"
	"cryptosim/internal/uuid"
	"cryptosim/internal/validator"
)

// --- mock trade service ---

type mockTradeService struct {
	executeFn            func(userID string, tc models.TradingContext, order services.Order) (*models.Transaction, error)
	getTransactionByIDFn func(userID, transactionID string) (*models.Transaction, error)
	listTransactionsFn   func(userID string, tc models.TradingContext, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
}

func (m *mockTradeService) Execute(userID string, tc models.TradingContext, order services.Order) (*models.Transaction, error) {
	if m.executeFn != nil {
		return m.executeFn(userID, tc, order)
	}
	return &models.Transaction{}, nil
}

func (m *mockTradeService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockTradeService) ListTransactions(userID string, tc models.TradingContext, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(userID, tc, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

var _ services.TradeServicer = (*mockTradeService)(nil)

// --- test helpers ---

const testUserID = "01900000-0000-7000-8000-000000000001"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

func setupTradeRouter(handler *TradeHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/trades", handler.Execute)
	auth.GET("/transactions", handler.List)
	auth.GET("/transactions/:id", handler.Get)
	return r
}

func TestTradeHandler_Execute(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		tradeSvc := &mockTradeService{
			executeFn: func(userID string, tc models.TradingContext, order services.Order) (*models.Transaction, error) {
				return &models.Transaction{
					ID:       uuid.New(),
					UserID:   userID,
					Side:     order.Side,
					Symbol:   order.Symbol,
					Quantity: order.Quantity,
					Price:    order.Price,
				}, nil
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "POST", "/trades",
			`{"side":"buy","symbol":"BTC","quantity":"0.5","price":"40000"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		tx := result["transaction"].(map[string]interface{})
		if tx["symbol"] != "BTC" {
			t.Errorf("expected symbol BTC, got %v", tx["symbol"])
		}
	})

	t.Run("targets the collection context when collection_id is set", func(t *testing.T) {
		collectionID := uuid.New()
		var captured models.TradingContext
		tradeSvc := &mockTradeService{
			executeFn: func(_ string, tc models.TradingContext, _ services.Order) (*models.Transaction, error) {
				captured = tc
				return &models.Transaction{ID: uuid.New()}, nil
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "POST", "/trades?collection_id="+collectionID,
			`{"side":"buy","symbol":"BTC","quantity":"1","price":"40000"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.CollectionID == nil || *captured.CollectionID != collectionID {
			t.Errorf("expected collection context %s, got %+v", collectionID, captured)
		}
	})

	t.Run("returns 400 on invalid side", func(t *testing.T) {
		r := setupTradeRouter(NewTradeHandler(&mockTradeService{}))

		rec := doRequest(r, "POST", "/trades",
			`{"side":"short","symbol":"BTC","quantity":"1","price":"40000"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on missing symbol", func(t *testing.T) {
		r := setupTradeRouter(NewTradeHandler(&mockTradeService{}))

		rec := doRequest(r, "POST", "/trades",
			`{"side":"buy","quantity":"1","price":"40000"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on malformed collection_id", func(t *testing.T) {
		r := setupTradeRouter(NewTradeHandler(&mockTradeService{}))

		rec := doRequest(r, "POST", "/trades?collection_id=not-a-uuid",
			`{"side":"buy","symbol":"BTC","quantity":"1","price":"40000"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("propagates insufficient balance", func(t *testing.T) {
		tradeSvc := &mockTradeService{
			executeFn: func(string, models.TradingContext, services.Order) (*models.Transaction, error) {
				return nil, apperrors.ErrInsufficientBalance
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "POST", "/trades",
			`{"side":"buy","symbol":"BTC","quantity":"100","price":"40000"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INSUFFICIENT_BALANCE")
	})
}

func TestTradeHandler_List(t *testing.T) {
	t.Run("parses filters and pagination", func(t *testing.T) {
		var gotPage pagination.PageRequest
		var gotFilter services.TransactionFilter
		tradeSvc := &mockTradeService{
			listTransactionsFn: func(_ string, _ models.TradingContext, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
				gotPage = page
				gotFilter = filter
				resp := pagination.NewPageResponse([]models.Transaction{{ID: uuid.New()}}, page.Page, page.PageSize, 1)
				return &resp, nil
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "GET",
			"/transactions?page=2&page_size=10&side=sell&symbol=ETH&from_date=2025-06-01T00:00:00Z", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotPage.Page != 2 || gotPage.PageSize != 10 {
			t.Errorf("expected page 2 size 10, got %+v", gotPage)
		}
		if gotFilter.Side == nil || *gotFilter.Side != models.TradeSideSell {
			t.Errorf("expected sell filter, got %+v", gotFilter.Side)
		}
		if gotFilter.Symbol == nil || *gotFilter.Symbol != "ETH" {
			t.Errorf("expected ETH filter, got %+v", gotFilter.Symbol)
		}
		if gotFilter.FromDate == nil {
			t.Error("expected from_date to be parsed")
		}
	})

	t.Run("returns 400 on malformed from_date", func(t *testing.T) {
		r := setupTradeRouter(NewTradeHandler(&mockTradeService{}))

		rec := doRequest(r, "GET", "/transactions?from_date=yesterday", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestTradeHandler_Get(t *testing.T) {
	t.Run("returns the transaction", func(t *testing.T) {
		txID := uuid.New()
		tradeSvc := &mockTradeService{
			getTransactionByIDFn: func(userID, transactionID string) (*models.Transaction, error) {
				return &models.Transaction{ID: transactionID, UserID: userID, Symbol: "BTC"}, nil
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "GET", "/transactions/"+txID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		tx := result["transaction"].(map[string]interface{})
		if tx["id"] != txID {
			t.Errorf("expected id %s, got %v", txID, tx["id"])
		}
	})

	t.Run("returns 400 on malformed id", func(t *testing.T) {
		r := setupTradeRouter(NewTradeHandler(&mockTradeService{}))

		rec := doRequest(r, "GET", "/transactions/42", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when not found", func(t *testing.T) {
		tradeSvc := &mockTradeService{
			getTransactionByIDFn: func(string, string) (*models.Transaction, error) {
				return nil, apperrors.ErrTransactionNotFound
			},
		}
		r := setupTradeRouter(NewTradeHandler(tradeSvc))

		rec := doRequest(r, "GET", "/transactions/"+uuid.New(), "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_FOUND")
	})
}

// quantity strings must decode into decimals through the JSON binding.
func TestTradeRequest_DecimalBinding(t *testing.T) {
	var captured services.Order
	tradeSvc := &mockTradeService{
		executeFn: func(_ string, _ models.TradingContext, order services.Order) (*models.Transaction, error) {
			captured = order
			return &models.Transaction{ID: uuid.New()}, nil
		},
	}
	r := setupTradeRouter(NewTradeHandler(tradeSvc))

	rec := doRequest(r, "POST", "/trades",
		`{"side":"buy","symbol":"BTC","quantity":"0.12345678","price":"43210.99"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !captured.Quantity.Equal(decimal.RequireFromString("0.12345678")) {
		t.Errorf("expected quantity 0.12345678, got %s", captured.Quantity)
	}
	if !captured.Price.Equal(decimal.RequireFromString("43210.99")) {
		t.Errorf("expected price 43210.99, got %s", captured.Price)
	}
}
