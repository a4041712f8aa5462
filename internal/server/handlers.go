package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/frontdesk/internal/coordinator"
	"github.com/mohammad-safakhou/frontdesk/internal/knowledge"
	"github.com/mohammad-safakhou/frontdesk/models"
)

// DefaultListLimit caps GET /api/requests/all when no limit is given.
const DefaultListLimit = 50

// Handlers exposes the coordinator to the dashboard and the voice front end.
type Handlers struct {
	Coordinator *coordinator.Coordinator
	Knowledge   *knowledge.Store
}

func (h *Handlers) Register(g *echo.Group) {
	g.POST("/questions", h.submitQuestion)
	g.POST("/requests/:id/resolve", h.resolve)
	g.GET("/requests/pending", h.listPending)
	g.GET("/requests/all", h.listAll)
	g.GET("/knowledge", h.listKnowledge)
	g.GET("/knowledge/search", h.searchKnowledge)
	g.POST("/knowledge/reload", h.reloadKnowledge)
	g.GET("/stats", h.stats)
}

func (h *Handlers) submitQuestion(c echo.Context) error {
	var q coordinator.Question
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	reply, err := h.Coordinator.SubmitQuestion(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reply)
}

type resolveResponse struct {
	models.HelpRequest
	LearningError string `json:"learning_error,omitempty"`
}

func (h *Handlers) resolve(c echo.Context) error {
	var body struct {
		Answer       string `json:"answer"`
		ResolverName string `json:"resolver_name"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	req, err := h.Coordinator.ResolveRequest(c.Request().Context(), c.Param("id"), body.Answer, body.ResolverName)
	var learnErr *models.LearningError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, resolveResponse{HelpRequest: req})
	case errors.As(err, &learnErr):
		return c.JSON(http.StatusOK, resolveResponse{HelpRequest: req, LearningError: learnErr.Error()})
	default:
		return err
	}
}

func (h *Handlers) listPending(c echo.Context) error {
	reqs, err := h.Coordinator.ListPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(reqs))
}

func (h *Handlers) listAll(c echo.Context) error {
	limit := DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	reqs, err := h.Coordinator.ListAll(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(reqs))
}

func (h *Handlers) listKnowledge(c echo.Context) error {
	return c.JSON(http.StatusOK, nonNil(h.Coordinator.ListKnowledge()))
}

func (h *Handlers) searchKnowledge(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	hits, err := h.Knowledge.TextSearch(c.QueryParam("q"), limit)
	if errors.Is(err, knowledge.ErrNoIndex) {
		return echo.NewHTTPError(http.StatusNotFound, "knowledge text search is disabled")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(hits))
}

func (h *Handlers) reloadKnowledge(c echo.Context) error {
	if err := h.Knowledge.Load(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"entries": h.Knowledge.Len()})
}

func (h *Handlers) stats(c echo.Context) error {
	st, err := h.Coordinator.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// nonNil keeps empty listings as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
