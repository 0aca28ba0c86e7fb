package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/go-remix/internal/acquire"
	"github.com/tphakala/go-remix/internal/analysis"
	"github.com/tphakala/go-remix/internal/errors"
)

// AnalyzeResponse summarises one acquisition.
type AnalyzeResponse struct {
	ID            string         `json:"id"`
	Digest        string         `json:"digest"`
	FileType      string         `json:"filetype"`
	CacheHit      bool           `json:"cache_hit"`
	Frames        int64          `json:"frames"`
	Duration      float64        `json:"duration"`
	TrackID       string         `json:"track_id,omitempty"`
	Artist        string         `json:"artist,omitempty"`
	Title         string         `json:"title,omitempty"`
	Tempo         float64        `json:"tempo"`
	Key           int            `json:"key"`
	Mode          int            `json:"mode"`
	TimeSignature int            `json:"time_signature"`
	Units         map[string]int `json:"units"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error    string `json:"error"`
	Stage    string `json:"stage,omitempty"`
	Category string `json:"category,omitempty"`
}

func newAnalyzeResponse(a *acquire.AnalyzedAudio) AnalyzeResponse {
	rec := a.Analysis
	units := make(map[string]int, len(analysis.Kinds))
	for _, kind := range analysis.Kinds {
		if u, ok := rec.Units(kind); ok {
			units[kind] = len(u)
		}
	}
	return AnalyzeResponse{
		ID:            a.ID.String(),
		Digest:        a.Digest.String(),
		FileType:      a.FileType,
		CacheHit:      a.CacheHit,
		Frames:        a.Buffer.Frames(),
		Duration:      a.Buffer.Duration(),
		TrackID:       rec.ID,
		Artist:        rec.Artist,
		Title:         rec.Title,
		Tempo:         rec.Summary.Tempo,
		Key:           rec.Summary.Key,
		Mode:          rec.Summary.Mode,
		TimeSignature: rec.Summary.TimeSignature,
		Units:         units,
	}
}

// analyze handles POST /api/v1/analyze?filetype=mp3.
func (s *Server) analyze(c echo.Context) error {
	audio, err := s.acquireBody(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAnalyzeResponse(audio))
}

// remix handles POST /api/v1/remix?filetype=mp3&unit=beats&every=2&offset=0
// and answers with every n-th unit rendered back to back as WAV.
func (s *Server) remix(c echo.Context) error {
	unit := c.QueryParam("unit")
	if unit == "" {
		unit = analysis.KindBeats
	}
	every, err := intParam(c, "every", 1)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	if every < 1 || offset < 0 {
		return badRequest("every must be at least 1 and offset non-negative")
	}

	audio, err := s.acquireBody(c)
	if err != nil {
		return err
	}

	quanta, err := audio.Quanta(unit)
	if err != nil {
		return apiError(err)
	}
	selected := quanta.Every(every, offset)
	if selected.Len() == 0 {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: "analysis has no " + unit + " to render",
		})
	}

	start := time.Now()
	out, err := selected.Render(0, nil, nil)
	if err != nil {
		return apiError(err)
	}
	s.recorder.RecordRender(unit, out.Frames())

	wav, err := out.Encode()
	if err != nil {
		return apiError(err)
	}
	s.slogger.Debug("rendered remix",
		"digest", audio.Digest.String(),
		"unit", unit,
		"quanta", selected.Len(),
		"frames", out.Frames(),
		"duration_ms", time.Since(start).Milliseconds())

	c.Response().Header().Set("X-Remix-Digest", audio.Digest.String())
	return c.Blob(http.StatusOK, "audio/wav", wav)
}

// lookupAnalysis handles GET /api/v1/analysis/:digest.
func (s *Server) lookupAnalysis(c echo.Context) error {
	if s.records == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "analysis cache disabled"})
	}
	digest, err := analysis.ParseDigest(c.Param("digest"))
	if err != nil {
		return apiError(err)
	}
	rec, found, err := s.records.Get(c.Request().Context(), digest)
	if err != nil {
		return apiError(err)
	}
	if !found {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no analysis for " + digest.String()})
	}
	return c.JSON(http.StatusOK, rec)
}

// acquireBody reads the request body and runs it through the pipeline.
func (s *Server) acquireBody(c echo.Context) (*acquire.AnalyzedAudio, error) {
	filetype := c.QueryParam("filetype")
	if filetype == "" {
		return nil, badRequest("filetype query parameter is required")
	}
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, badRequest("failed to read request body")
	}
	if s.metrics != nil {
		s.metrics.HTTP.RecordUpload(len(data))
	}

	audio, err := s.acquirer.Acquire(c.Request().Context(), data, filetype)
	if err != nil {
		return nil, apiError(err)
	}
	return audio, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name + " must be an integer")
	}
	return v, nil
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{Error: msg, Category: string(errors.CategoryValidation)})
}

// apiError maps an error category onto an HTTP status.
func apiError(err error) error {
	status := http.StatusInternalServerError
	var ee *errors.EnhancedError
	category := ""
	if errors.As(err, &ee) {
		category = string(ee.Category)
		switch ee.Category {
		case errors.CategoryValidation:
			status = http.StatusBadRequest
		case errors.CategoryLimit:
			status = http.StatusRequestEntityTooLarge
		case errors.CategoryDecode, errors.CategoryFormat:
			status = http.StatusUnprocessableEntity
		case errors.CategoryAnalysisFetch, errors.CategoryProvider, errors.CategoryNetwork:
			status = http.StatusBadGateway
		case errors.CategoryNotFound:
			status = http.StatusNotFound
		case errors.CategoryCancellation, errors.CategoryTimeout:
			status = http.StatusServiceUnavailable
		}
	}
	return echo.NewHTTPError(status, ErrorResponse{
		Error:    err.Error(),
		Stage:    acquire.FailedStage(err),
		Category: category,
	}).SetInternal(err)
}
