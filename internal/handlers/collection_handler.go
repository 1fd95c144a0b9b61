package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "cryptosim/internal/errors"
	"cryptosim/internal/pagination"
	"cryptosim/internal/services"
)

// CollectionHandler handles group competition requests.
type CollectionHandler struct {
	collectionService services.CollectionServicer
}

// NewCollectionHandler creates a new CollectionHandler
func NewCollectionHandler(collectionService services.CollectionServicer) *CollectionHandler {
	return &CollectionHandler{collectionService: collectionService}
}

// CreateCollectionRequest represents the collection creation payload.
type CreateCollectionRequest struct {
	Name            string          `json:"name" binding:"required,max=100"`
	Description     string          `json:"description" binding:"max=500"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
}

// JoinCollectionRequest carries the invite code to join with.
type JoinCollectionRequest struct {
	InviteCode string `json:"invite_code" binding:"required,max=12"`
}

// Create handles POST /collections
func (h *CollectionHandler) Create(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	if req.StartingBalance.IsZero() {
		req.StartingBalance = decimal.NewFromInt(100000)
	}

	collection, err := h.collectionService.CreateCollection(userID, req.Name, req.Description, req.StartingBalance)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"collection": collection})
}

// Join handles POST /collections/join
func (h *CollectionHandler) Join(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req JoinCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	collection, err := h.collectionService.JoinCollection(userID, req.InviteCode)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collection": collection})
}

// Leave handles POST /collections/:id/leave
func (h *CollectionHandler) Leave(c *gin.Context) {
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

	if err := h.collectionService.LeaveCollection(userID, id); err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left collection"})
}

// Get handles GET /collections/:id
func (h *CollectionHandler) Get(c *gin.Context) {
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

	collection, err := h.collectionService.GetCollectionByID(userID, id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"collection": collection})
}

// List handles GET /collections
func (h *CollectionHandler) List(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.collectionService.ListUserCollections(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
