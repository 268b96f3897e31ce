package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/ws", s.handleWS)

	// Read-only operation catalog for documentation tooling.
	s.E.GET("/api/operations", func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.Host.Catalog())
	})

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
