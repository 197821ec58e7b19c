package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tracking-service/internal/http/middleware"
	"tracking-service/internal/service"
)

type Handler struct {
	trackingService *service.TrackingService
	ingestService   *service.IngestService
	nearbyService   *service.NearbyService
	log             zerolog.Logger
}

func NewHandler(
	trackingService *service.TrackingService,
	ingestService *service.IngestService,
	nearbyService *service.NearbyService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		trackingService: trackingService,
		ingestService:   ingestService,
		nearbyService:   nearbyService,
		log:             log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := r.Group("/")
	protected.Use(authMiddleware)

	collector := protected.Group("/collector")
	{
		collector.POST("/location", h.submitLocation)
		collector.POST("/tracking/start", h.startTracking)
		collector.PUT("/tracking/stop", h.stopTracking)
		collector.GET("/tracking/session", h.getOwnSession)
	}

	dispatch := protected.Group("/dispatch")
	{
		dispatch.GET("/nearby", h.nearbyAgents)
		dispatch.GET("/agents/:id/location", h.agentLocation)
		dispatch.GET("/sessions/:id/history", h.sessionHistory)
	}
}

func (h *Handler) submitLocation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		AssignmentID *string  `json:"assignment_id"`
		Latitude     *float64 `json:"latitude" binding:"required"`
		Longitude    *float64 `json:"longitude" binding:"required"`
		AccuracyM    float64  `json:"accuracy_m"`
		RecordedAt   string   `json:"recorded_at"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	input := service.SubmitInput{
		AssignmentID: req.AssignmentID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		AccuracyM:    req.AccuracyM,
	}
	if req.RecordedAt != "" {
		recordedAt, err := parseTime(req.RecordedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid recorded_at"))
			return
		}
		input.RecordedAt = recordedAt
	}

	result, err := h.ingestService.Submit(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) startTracking(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		AssignmentID *string  `json:"assignment_id"`
		TargetLat    *float64 `json:"target_lat"`
		TargetLon    *float64 `json:"target_lon"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	session, err := h.trackingService.Start(c.Request.Context(), principal, service.StartInput{
		AssignmentID: req.AssignmentID,
		TargetLat:    req.TargetLat,
		TargetLon:    req.TargetLon,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) stopTracking(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	if err := h.trackingService.Stop(c.Request.Context(), principal); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"message": "tracking stopped"}))
}

func (h *Handler) getOwnSession(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	session, err := h.trackingService.GetOwn(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) nearbyAgents(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(c.Query("latitude")), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid latitude"))
		return
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(c.Query("longitude")), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid longitude"))
		return
	}
	radiusM, err := strconv.ParseFloat(strings.TrimSpace(c.Query("radius_m")), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid radius_m"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("invalid limit"))
			return
		}
	}

	matches, err := h.nearbyService.Nearby(c.Request.Context(), principal, lat, lon, radiusM, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(matches))
}

func (h *Handler) agentLocation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	agentID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid agent id"))
		return
	}

	location, err := h.nearbyService.CurrentLocation(c.Request.Context(), principal, agentID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(location))
}

func (h *Handler) sessionHistory(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	sessionID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid session id"))
		return
	}

	entries, err := h.nearbyService.History(c.Request.Context(), principal, sessionID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(entries))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid time format")
}
