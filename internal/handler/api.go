// Package handler implements the HTTP endpoints: the /proxy/ relay, the
// /api/v1 namespace and the SPA entry document fallback.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"podcast-web/internal/config"
)

// APIPrefix is where the JSON API namespace is mounted.
const APIPrefix = "/api/v1"

// Version is a string type for dependency injection of the build version.
type Version string

// APIHandler serves the /api/v1 namespace.
type APIHandler struct {
	cfg     *config.Config
	version Version
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(cfg *config.Config, v Version) *APIHandler {
	return &APIHandler{cfg: cfg, version: v}
}

// Register mounts the API routes on g. Unknown paths inside the namespace
// get a JSON 404 instead of falling through to the SPA.
func (h *APIHandler) Register(g *echo.Group) {
	g.GET("/healthz", h.Healthz)
	g.GET("/status", h.Status)
	g.Any("", h.NotFound)
	g.Any("/*", h.NotFound)
}

// Healthz returns a simple OK response for liveness probes.
func (h *APIHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns build and environment information.
func (h *APIHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": string(h.version),
		"env":     string(h.cfg.Env),
	})
}

// NotFound answers any unmatched API route.
func (h *APIHandler) NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": "not found",
	})
}
