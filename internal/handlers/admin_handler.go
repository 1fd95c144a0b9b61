package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cryptosim/internal/services"
)

// AdminHandler exposes operational endpoints guarded by the admin API key.
type AdminHandler struct {
	reconciler *services.Reconciler
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reconciler *services.Reconciler) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

// TriggerReconcile handles POST /admin/reconcile. The trigger is dropped if
// a pass is already running or pending.
func (h *AdminHandler) TriggerReconcile(c *gin.Context) {
	accepted := h.reconciler.TriggerNow()
	status := http.StatusAccepted
	message := "Reconciliation pass scheduled"
	if !accepted {
		message = "Reconciliation already in progress; trigger dropped"
	}
	c.JSON(status, gin.H{"accepted": accepted, "message": message})
}

// ReconcileStatus handles GET /admin/reconcile. It returns the last pass
// summary, or 204 before the first pass has run.
func (h *AdminHandler) ReconcileStatus(c *gin.Context) {
	result := h.reconciler.LastResult()
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_run": result})
}
