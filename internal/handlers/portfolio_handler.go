package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cryptosim/internal/services"
)

// PortfolioHandler serves portfolio snapshots and data reset.
type PortfolioHandler struct {
	ledgerService services.LedgerServicer
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(ledgerService services.LedgerServicer) *PortfolioHandler {
	return &PortfolioHandler{ledgerService: ledgerService}
}

// Get handles GET /portfolio. The snapshot is derived on read, so a context
// that has never traded returns the default view without creating anything.
func (h *PortfolioHandler) Get(c *gin.Context) {
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

	snapshot, err := h.ledgerService.GetSnapshot(tc)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolio": snapshot})
}

// Reset handles POST /portfolio/reset. It wipes every account, holding, and
// transaction for the user; the next read lazily re-initializes defaults.
func (h *PortfolioHandler) Reset(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.ledgerService.ResetUserData(userID); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Portfolio data reset"})
}
