package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/market"
)

// MarketHandler serves cached market data.
type MarketHandler struct {
	gateway *market.Gateway
}

// NewMarketHandler creates a new MarketHandler
func NewMarketHandler(gateway *market.Gateway) *MarketHandler {
	return &MarketHandler{gateway: gateway}
}

// GetPrices handles GET /market/prices?symbols=BTC,ETH
func (h *MarketHandler) GetPrices(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbols query parameter is required"))
		return
	}

	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 || len(symbols) > 50 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "between 1 and 50 symbols required"))
		return
	}

	prices, err := h.gateway.GetPrices(c.Request.Context(), symbols)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices": prices})
}

// GetHistory handles GET /market/history/:symbol?days=7
func (h *MarketHandler) GetHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbol is required"))
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "days must be between 1 and 365"))
			return
		}
		days = parsed
	}

	points, err := h.gateway.GetHistoricalPrices(c.Request.Context(), symbol, days)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"days":   days,
		"prices": points,
	})
}
