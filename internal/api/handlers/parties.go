package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/erp/dolibarr"
	"github.com/eshaffer321/bankrecon/internal/api/dto"
)

// PartiesHandler searches ERP third parties.
type PartiesHandler struct {
	*Base
	erp PartySearcher
}

// NewPartiesHandler creates a new parties handler.
func NewPartiesHandler(erp PartySearcher, logger *slog.Logger) *PartiesHandler {
	return &PartiesHandler{Base: NewBase(nil, logger), erp: erp}
}

// Search handles GET /api/parties/search?name=
func (h *PartiesHandler) Search(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if len(name) < 2 {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("name must be at least 2 characters"))
		return
	}

	parties, err := h.erp.SearchParties(c.Request.Context(), name)
	if err != nil {
		h.WriteServiceError(c, err, "party")
		return
	}
	if parties == nil {
		parties = []dolibarr.Party{}
	}
	h.WriteJSON(c, http.StatusOK, dto.PartySearchResponse{
		Query:   name,
		Parties: parties,
		Count:   len(parties),
	})
}
