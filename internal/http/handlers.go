package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/capture"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/logging"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

var errModelUnconfigured = errors.New("on-device model not configured")

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleCreateNote(c echo.Context) error {
	var req CreateNoteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid note request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := s.notes.ProcessText(requestContext(c), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (s *Server) handleListEntities(c echo.Context) error {
	var f store.Filter
	if v := c.QueryParam("type"); v != "" {
		t, err := entity.ParseType(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Type = t
	}
	switch st := entity.Status(c.QueryParam("status")); st {
	case "", entity.StatusActive, entity.StatusCompleted, entity.StatusCancelled:
		f.Status = st
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status "+string(st))
	}
	limit, err := queryLimit(c, store.DefaultListLimit)
	if err != nil {
		return err
	}
	f.Limit = limit

	es, err := s.store.List(requestContext(c), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entitiesResponse(es))
}

func (s *Server) handleUpcoming(c echo.Context) error {
	limit, err := queryLimit(c, store.DefaultUpcomingLimit)
	if err != nil {
		return err
	}
	es, err := s.store.QueryUpcoming(requestContext(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entitiesResponse(es))
}

func (s *Server) handleSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	limit, err := queryLimit(c, store.DefaultSearchLimit)
	if err != nil {
		return err
	}
	es, err := s.store.Search(requestContext(c), q, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entitiesResponse(es))
}

func (s *Server) handleComplete(c echo.Context) error {
	if err := s.store.MarkComplete(requestContext(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.store.Delete(requestContext(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleVoiceNotes(c echo.Context) error {
	limit, err := queryLimit(c, store.DefaultListLimit)
	if err != nil {
		return err
	}
	vns, err := s.store.ListVoiceNotes(requestContext(c), limit)
	if err != nil {
		return err
	}
	if vns == nil {
		vns = []entity.VoiceNote{}
	}
	return c.JSON(http.StatusOK, VoiceNotesResponse{VoiceNotes: vns, Count: len(vns)})
}

func (s *Server) handleModelStatus(c echo.Context) error {
	if s.model == nil {
		return errModelUnconfigured
	}
	return c.JSON(http.StatusOK, s.model.Status())
}

// handleModelInit downloads and loads the model before responding.
func (s *Server) handleModelInit(c echo.Context) error {
	if s.model == nil {
		return errModelUnconfigured
	}
	ctx, cancel := context.WithTimeout(requestContext(c), s.config.InitTimeout)
	defer cancel()
	if err := s.model.Initialize(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.model.Status())
}

func requestContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		ctx = logging.WithRequestID(ctx, id)
	}
	return ctx
}

func queryLimit(c echo.Context, def int) (int, error) {
	v := c.QueryParam("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
	}
	return n, nil
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, notes.ErrTextTooShort), errors.Is(err, capture.ErrNoSpeechDetected):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, extraction.ErrNoExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errModelUnconfigured), errors.Is(err, ondevice.ErrNotReady),
		errors.Is(err, ondevice.ErrBusy), errors.Is(err, extraction.ErrCloudUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ondevice.ErrModelDownloadFailed), errors.Is(err, extraction.ErrCloudAuth):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, ErrorResponse{Error: msg, Message: msg})
			return
		}

		code := statusFor(err)
		message := notes.UserMessage(err)
		if errors.Is(err, errModelUnconfigured) {
			message = "The on-device model is not configured."
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		_ = c.JSON(code, ErrorResponse{Error: err.Error(), Message: message})
	}
}
