package handlers

import (
	"net/http"

	"mibagent/internal/mib"
	"mibagent/internal/version"

	"github.com/gin-gonic/gin"
)

type SystemHandlers struct {
	store *mib.Store
}

func NewSystemHandlers(store *mib.Store) *SystemHandlers {
	return &SystemHandlers{store: store}
}

func (h *SystemHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "generation": h.store.Generation()})
}

func (h *SystemHandlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
