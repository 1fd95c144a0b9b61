package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/models"
	"cryptosim/internal/pagination"
	"cryptosim/internal/services"
)

// TradeHandler handles order submission and trade history requests.
type TradeHandler struct {
	tradeService services.TradeServicer
}

// NewTradeHandler creates a new TradeHandler
func NewTradeHandler(tradeService services.TradeServicer) *TradeHandler {
	return &TradeHandler{tradeService: tradeService}
}

// TradeRequest represents an order submission payload.
type TradeRequest struct {
	Side      string          `json:"side" binding:"required,trade_side"`
	OrderType string          `json:"order_type" binding:"omitempty,order_type"`
	Symbol    string          `json:"symbol" binding:"required,crypto_symbol"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"required"`
	Fee       decimal.Decimal `json:"fee"`
}

// Execute handles POST /trades
func (h *TradeHandler) Execute(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tc, err := resolveContext(c, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	record, err := h.tradeService.Execute(userID, tc, services.Order{
		Side:      models.TradeSide(req.Side),
		OrderType: models.OrderType(req.OrderType),
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Fee:       req.Fee,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": record})
}

// transactionListQuery binds the optional history filters.
type transactionListQuery struct {
	pagination.PageRequest
	Side     string `form:"side" binding:"omitempty,trade_side"`
	Symbol   string `form:"symbol" binding:"omitempty,crypto_symbol"`
	FromDate string `form:"from_date" binding:"omitempty"`
	ToDate   string `form:"to_date" binding:"omitempty"`
}

// List handles GET /transactions
func (h *TradeHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tc, err := resolveContext(c, userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query transactionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter := services.TransactionFilter{}
	if query.Side != "" {
		side := models.TradeSide(query.Side)
		filter.Side = &side
	}
	if query.Symbol != "" {
		filter.Symbol = &query.Symbol
	}
	if query.FromDate != "" {
		from, err := time.Parse(time.RFC3339, query.FromDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "from_date must be RFC 3339"))
			return
		}
		filter.FromDate = &from
	}
	if query.ToDate != "" {
		to, err := time.Parse(time.RFC3339, query.ToDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must be RFC 3339"))
			return
		}
		filter.ToDate = &to
	}

	result, err := h.tradeService.ListTransactions(userID, tc, query.PageRequest, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Get handles GET /transactions/:id
func (h *TradeHandler) Get(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	record, err := h.tradeService.GetTransactionByID(userID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": record})
}
