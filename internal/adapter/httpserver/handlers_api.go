package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/livefeed/internal/domain"
	apperrors "github.com/pscheid92/livefeed/internal/platform/errors"
)

const maxUpdateBodySize = "64K"

type createUpdateRequest struct {
	// Pointers so an absent field can be told apart from an empty string.
	Message *string `json:"message"`
	Type    *string `json:"type"`
	Title   *string `json:"title"`
}

type createUpdateResponse struct {
	Success bool         `json:"success"`
	Update  domain.Event `json:"update"`
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api")
	api.POST("/update", s.handleCreateUpdate,
		s.ingressLimiter(),
		middleware.BodyLimit(maxUpdateBodySize),
	)
	api.GET("/updates", s.handleListUpdates)
}

func (s *Server) handleCreateUpdate(c echo.Context) error {
	var req createUpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON object")
	}
	if req.Message == nil {
		return apperrors.ValidationError("message is required")
	}

	event, err := s.feed.CreateUpdate(c.Request().Context(), domain.NewDraft(*req.Message, req.Type, req.Title))
	if err != nil {
		return apperrors.InternalError("failed to create update", err)
	}

	if err := c.JSON(http.StatusCreated, createUpdateResponse{Success: true, Update: event}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListUpdates(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.feed.ListUpdates(c.Request().Context())); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
