package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"webshot/internal/capture"
)

// CaptureService is the pipeline boundary the handlers talk to.
type CaptureService interface {
	Capture(ctx context.Context, req capture.Request) (*capture.Result, error)
	Probe() bool
}

// thumbnailResponse wraps the encoded image for JSON transport.
type thumbnailResponse struct {
	URL         string `json:"url"`
	ImageData   string `json:"image_data"` // base64
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type healthResponse struct {
	Status           string `json:"status"`
	BrowserAvailable bool   `json:"browser_available"`
}

func (s *Server) handleGetThumbnail(c *gin.Context) {
	var req capture.Request
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	s.generate(c, req)
}

func (s *Server) handlePostThumbnail(c *gin.Context) {
	var req capture.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	s.generate(c, req)
}

func (s *Server) generate(c *gin.Context, req capture.Request) {
	result, err := s.svc.Capture(c.Request.Context(), req)
	if err != nil {
		kind := capture.Kind(err)
		c.JSON(statusForKind(kind), errorResponse{Error: err.Error(), Kind: kind})
		return
	}

	c.JSON(http.StatusOK, thumbnailResponse{
		URL:         req.URL,
		ImageData:   base64.StdEncoding.EncodeToString(result.Image),
		ContentType: result.ContentType,
		Width:       result.Width,
		Height:      result.Height,
		Title:       result.Title,
		Description: result.Description,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:           "ok",
		BrowserAvailable: s.svc.Probe(),
	})
}

// statusForKind maps stable pipeline error identifiers to HTTP statuses.
func statusForKind(kind string) int {
	switch kind {
	case "invalid_url", "unsupported_format":
		return http.StatusBadRequest
	case "protocol_timeout", "browser_startup_timeout":
		return http.StatusRequestTimeout
	case "browser_not_found":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
