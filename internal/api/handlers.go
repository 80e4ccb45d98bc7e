package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/yardwatch/yardwatch/internal/dispatch"
	"github.com/yardwatch/yardwatch/internal/errors"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const (
	defaultIncidentLimit = 100
	maxIncidentLimit     = 1000
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	TraceID string `json:"trace_id,omitempty"`
}

// IncidentResponse is incident metadata. Frames are not served here.
type IncidentResponse struct {
	ID          uint      `json:"id"`
	RecordingID uint      `json:"recording_id"`
	ClassName   string    `json:"class_name"`
	Confidence  float64   `json:"confidence"`
	BBox        string    `json:"bbox,omitempty"`
	FrameBytes  int       `json:"frame_bytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// DetectionTypeResponse describes one available detection type.
type DetectionTypeResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

// StartDetection handles POST /api/v1/detection/start.
func (s *Server) StartDetection(c echo.Context) error {
	var req dispatch.StartRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, err, "invalid request body", http.StatusBadRequest)
	}
	if req.CameraID == 0 || req.DetectionTypeID == 0 {
		return s.fail(c, nil, "camera_id and detection_type_id are required", http.StatusBadRequest)
	}

	started, err := s.dispatcher.Start(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err, "failed to start detection", statusFor(err))
	}
	return c.JSON(http.StatusAccepted, started)
}

// StopDetection handles POST /api/v1/detection/stop/:recordingId.
func (s *Server) StopDetection(c echo.Context) error {
	id, err := parseID(c.Param("recordingId"))
	if err != nil {
		return s.fail(c, err, "invalid recording id", http.StatusBadRequest)
	}
	if err := s.dispatcher.Stop(c.Request().Context(), id); err != nil {
		return s.fail(c, err, "failed to stop detection", statusFor(err))
	}
	return c.JSON(http.StatusOK, map[string]any{"recording_id": id, "stopped": true})
}

// ListDetectionTypes handles GET /api/v1/detection/types.
func (s *Server) ListDetectionTypes(c echo.Context) error {
	types, err := s.catalog.ListDetectionTypes(c.Request().Context())
	if err != nil {
		return s.fail(c, err, "failed to list detection types", statusFor(err))
	}
	out := make([]DetectionTypeResponse, 0, len(types))
	for _, t := range types {
		out = append(out, DetectionTypeResponse{ID: t.ID, Name: t.Name, Kind: t.Kind, Description: t.Description})
	}
	return c.JSON(http.StatusOK, out)
}

// GetJob handles GET /api/v1/jobs/:handle.
func (s *Server) GetJob(c echo.Context) error {
	info, err := s.jobs.Get(c.Param("handle"))
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		return s.fail(c, err, "job not found", http.StatusNotFound)
	}
	if err != nil {
		return s.fail(c, err, "failed to read job", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, info)
}

// ListIncidents handles GET /api/v1/recordings/:id/incidents?limit=N.
func (s *Server) ListIncidents(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return s.fail(c, err, "invalid recording id", http.StatusBadRequest)
	}
	limit := defaultIncidentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return s.fail(c, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(n, maxIncidentLimit)
	}

	incidents, err := s.incidents.ListByRecording(c.Request().Context(), id, limit)
	if err != nil {
		return s.fail(c, err, "failed to list incidents", statusFor(err))
	}
	out := make([]IncidentResponse, 0, len(incidents))
	for _, in := range incidents {
		out = append(out, IncidentResponse{
			ID:          in.ID,
			RecordingID: in.RecordingID,
			ClassName:   in.ClassName,
			Confidence:  in.Confidence,
			BBox:        in.BBox,
			FrameBytes:  in.FrameSize,
			Timestamp:   in.Timestamp.UTC(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Health handles GET /healthz.
func (s *Server) Health(c echo.Context) error {
	body := map[string]any{"status": "ok"}
	if s.jobs != nil {
		body["jobs"] = s.jobs.Stats()
	}
	if s.ping != nil {
		if err := s.ping(c.Request().Context()); err != nil {
			s.log.WithContext(c.Request().Context()).Warn("health check failed", logger.Error(err))
			body["status"] = "degraded"
			body["error"] = "database unavailable"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) fail(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Message: message,
		Code:    code,
		TraceID: logger.TraceIDFromContext(c.Request().Context()),
	}
	// server-side error text can carry driver and host details
	if err != nil && code < http.StatusInternalServerError {
		resp.Error = err.Error()
	} else {
		resp.Error = message
	}

	log := s.log.WithContext(c.Request().Context()).With(
		logger.String("path", c.Request().URL.Path),
		logger.Int("code", code))
	if code >= http.StatusInternalServerError {
		log.Error(message, logger.Error(err))
	} else {
		log.Debug(message, logger.Error(err))
	}
	return c.JSON(code, resp)
}

// errorHandler renders echo's own errors (unknown routes, bad methods) in
// the same shape as handler errors.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = http.StatusText(code)
	}
	_ = s.fail(c, err, message, code)
}

func statusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryValidation, errors.CategoryConfiguration:
		return http.StatusUnprocessableEntity
	case errors.CategoryJobQueue:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || n == 0 {
		return 0, errors.Newf("invalid id %q", raw).Component("api").Category(errors.CategoryValidation).Build()
	}
	return uint(n), nil
}
