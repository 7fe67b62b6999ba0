package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pestalert/pestalert-go/internal/advisory"
	"github.com/pestalert/pestalert-go/internal/analysis"
	"github.com/pestalert/pestalert-go/internal/assets"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	analysis.ServiceStatus
	Version       string  `json:"version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// handleAnalyze accepts a multipart form with an "image" file and the
// farmer fields "farmer_id", "lat", "lon" and "tier".
func (s *Server) handleAnalyze(c echo.Context) error {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	farmer, err := farmerFromForm(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: requestID})
	}

	image, err := s.readImage(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot read image upload", RequestID: requestID})
	}

	ctx := logger.WithTraceID(c.Request().Context(), requestID)
	outcome, err := s.analyzer.Analyze(ctx, image, farmer)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, outcome)
	case errors.IsCategory(err, errors.CategoryValidation):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: advisory.ValidationMessage, RequestID: requestID})
	default:
		s.log.Error("analysis failed", logger.String("request_id", requestID), logger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: advisory.RetryMessage, RequestID: requestID})
	}
}

// readImage returns the uploaded photo. A missing file yields nil so the
// validator can reject it like any other empty photo.
func (s *Server) readImage(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, s.config.BodyLimit))
}

func farmerFromForm(c echo.Context) (model.FarmerContext, error) {
	farmer := model.FarmerContext{
		ID:   strings.TrimSpace(c.FormValue("farmer_id")),
		Tier: model.ParseSubscriptionTier(c.FormValue("tier")),
	}
	if farmer.ID == "" {
		return farmer, errors.NewStd("farmer_id is required")
	}

	lat, err := parseCoordinate(c.FormValue("lat"), 90)
	if err != nil {
		return farmer, errors.NewStd("lat must be a number between -90 and 90")
	}
	lon, err := parseCoordinate(c.FormValue("lon"), 180)
	if err != nil {
		return farmer, errors.NewStd("lon must be a number between -180 and 180")
	}
	farmer.Location = model.Location{Lat: lat, Lon: lon}
	return farmer, nil
}

func parseCoordinate(raw string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if v < -limit || v > limit {
		return 0, errors.NewStd("out of range")
	}
	return v, nil
}

// handleHealth reports 503 only when the service cannot analyse at all.
func (s *Server) handleHealth(c echo.Context) error {
	st := s.analyzer.Status(c.Request().Context())

	code := http.StatusOK
	if st.Status == analysis.StatusError {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthResponse{
		ServiceStatus: st,
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleAsset(c echo.Context) error {
	category := model.AudioCategory(strings.ToLower(c.Param("category")))

	asset, err := s.assets.Resolve(c.Request().Context(), category)
	if err != nil {
		if errors.Is(err, assets.ErrAssetMissing) || errors.Is(err, assets.ErrUnknownCategory) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "voice note not found"})
		}
		s.log.Warn("voice note unavailable", logger.String("category", string(category)), logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "voice note unavailable"})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+asset.Filename+`"`)
	return c.Blob(http.StatusOK, asset.MIMEType, asset.Data)
}

// errorHandler renders echo errors (404 routes, body limit, panics) as
// ErrorResponse.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = http.StatusText(code)
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", logger.Error(err))
	}

	resp := ErrorResponse{Error: msg, RequestID: c.Response().Header().Get(echo.HeaderXRequestID)}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, resp)
	}
	if err != nil {
		s.log.Warn("failed to write error response", logger.Error(err))
	}
}
