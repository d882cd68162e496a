package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"podcast-web/internal/assets"
)

// SPAHandler answers every route nothing else claimed with the entry
// document, so the client-side router can take over.
type SPAHandler struct {
	entry *assets.EntryDocument
}

// NewSPAHandler creates an SPAHandler.
func NewSPAHandler(entry *assets.EntryDocument) *SPAHandler {
	return &SPAHandler{entry: entry}
}

// Fallback writes the entry document with a 200 status.
func (h *SPAHandler) Fallback(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return c.HTMLBlob(http.StatusOK, h.entry.Bytes())
}
