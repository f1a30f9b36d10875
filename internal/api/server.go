// Package api exposes bill submission and result polling over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gyeh/billadj/internal/intake"
	"github.com/gyeh/billadj/internal/metrics"
	"github.com/gyeh/billadj/internal/model"
	"github.com/gyeh/billadj/internal/store"
)

// maxBody bounds a submitted bill document.
const maxBody = "4M"

// Enqueuer schedules a stored bill for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, tableID string) error
}

// Server holds the handler dependencies.
type Server struct {
	Bills   store.BillStore
	Results store.ResultStore
	Queue   Enqueuer
	// Health, when set, serves /health. It defaults to a static OK.
	Health echo.HandlerFunc
	Log    zerolog.Logger
}

// Submitted is the 202 body of POST /v1/bills.
type Submitted struct {
	TableID string `json:"table_id"`
	JobID   string `json:"job_id"`
}

// BillStatus is the body of GET /v1/bills/:table_id.
type BillStatus struct {
	TableID       string       `json:"table_id"`
	JobID         string       `json:"job_id"`
	Status        model.Status `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Echo builds the router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log := s.Log.With().Str("component", "api").Logger()
	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(recovery(log))

	health := s.Health
	if health == nil {
		health = func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		}
	}
	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/bills", s.submit, middleware.BodyLimit(maxBody))
	v1.GET("/bills/:table_id", s.getBill)
	v1.GET("/results/:job_id", s.getResult)
	return e
}

func (s *Server) submit(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "read body: " + err.Error()})
	}
	b, err := intake.Decode(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}

	ctx := c.Request().Context()
	if err := s.Bills.Create(ctx, b); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return c.JSON(http.StatusConflict, errorBody{Error: "bill " + b.TableID + " already exists"})
		}
		return err
	}
	if err := s.Queue.Enqueue(ctx, b.TableID); err != nil {
		// The bill is stored as EXTRACTED and is picked up by the next resume.
		s.Log.Warn().Err(err).Str("table_id", b.TableID).Msg("enqueue failed")
	}
	return c.JSON(http.StatusAccepted, Submitted{TableID: b.TableID, JobID: b.JobID})
}

func (s *Server) getBill(c echo.Context) error {
	b, err := s.Bills.Get(c.Request().Context(), c.Param("table_id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Error: "bill not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BillStatus{
		TableID:       b.TableID,
		JobID:         b.JobID,
		Status:        b.Status,
		FailureReason: b.FailureReason,
		UpdatedAt:     b.UpdatedAt,
	})
}

func (s *Server) getResult(c echo.Context) error {
	ctx := c.Request().Context()
	jobID := c.Param("job_id")
	res, err := s.Results.Get(ctx, jobID)
	if errors.Is(err, store.ErrNotReady) {
		return c.JSON(http.StatusNotFound, errorBody{Error: store.ErrNotReady.Error()})
	}
	if err != nil {
		return err
	}
	if c.QueryParam("consume") == "true" {
		if err := s.Results.Delete(ctx, jobID); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, res)
}
