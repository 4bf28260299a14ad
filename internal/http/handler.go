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

	"parking-alpr-service/internal/config"
	"parking-alpr-service/internal/domain/parking"
	"parking-alpr-service/internal/service"
)

type Handler struct {
	parkingService *service.ParkingService
	config         *config.Config
	log            zerolog.Logger
}

func NewHandler(
	parkingService *service.ParkingService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		parkingService: parkingService,
		config:         cfg,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware, rateLimitMiddleware gin.HandlerFunc) {
	// Camera webhook; shared-token check when configured
	webhook := r.Group("/api/v1")
	webhook.Use(WebhookToken(h.config.Server.WebhookToken))
	{
		webhook.POST("/anpr/events", h.processEvent)
	}

	// Public guest boundary, bot-gated and rate-limited
	public := r.Group("/api/v1")
	if rateLimitMiddleware != nil {
		public.Use(rateLimitMiddleware)
	}
	{
		public.POST("/guest/confirm", h.confirmGuestPlate)
	}

	// Staff endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/events", h.listEvents)
		protected.GET("/sessions", h.listSessions)
		protected.GET("/guests", h.listGuests)
		protected.POST("/admin/sweep", h.sweepExpired)
	}
}

func (h *Handler) processEvent(c *gin.Context) {
	var payload parking.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if payload.EventTime.IsZero() {
		payload.EventTime = time.Now()
	}
	// cameras that send no event id get one so the record is still
	// addressable for dedupe
	if payload.ExternalID == "" {
		payload.ExternalID = uuid.NewString()
	}

	orgID := h.orgFromQuery(c)

	result, err := h.parkingService.ProcessIncomingEvent(c.Request.Context(), payload, orgID, h.config.Camera.Model)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":     "ok",
		"event_id":   result.EventID,
		"plate_id":   result.PlateID,
		"plate":      result.Plate,
		"action":     result.Action,
		"session_id": result.SessionID,
		"guest_id":   result.GuestID,
		"details":    result.Details,
	})
}

type confirmRequest struct {
	Plate          string `json:"plate"`
	RecaptchaToken string `json:"recaptcha_token"`
}

func (h *Handler) confirmGuestPlate(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.parkingService.ConfirmPlate(
		c.Request.Context(),
		req.Plate,
		req.RecaptchaToken,
		c.ClientIP(),
		h.config.Parking.DefaultOrgID,
	)
	if err != nil {
		var confirmErr *parking.ConfirmError
		if errors.As(err, &confirmErr) {
			c.JSON(confirmStatus(confirmErr.Code), gin.H{
				"success":    false,
				"error_code": confirmErr.Code,
				"message":    confirmErr.Message,
				"details":    confirmErr.Details,
			})
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"plate":       result.Plate,
		"session_id":  result.SessionID,
		"valid_until": result.ValidUntil,
	})
}

func confirmStatus(code parking.ConfirmErrorCode) int {
	switch code {
	case parking.CodeRecaptchaFailed:
		return http.StatusForbidden
	case parking.CodeInvalidLicensePlate:
		return http.StatusBadRequest
	default:
		// business conflicts: registered vehicle, already confirmed,
		// no entry, expired window
		return http.StatusConflict
	}
}

func (h *Handler) listEvents(c *gin.Context) {
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	events, err := h.parkingService.FindEvents(c.Request.Context(), h.orgFromQuery(c), plateQuery, from, to, h.limit(c), h.offset(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listSessions(c *gin.Context) {
	var status *string
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status = &s
	}
	var plateQuery *string
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		plateQuery = &plate
	}

	sessions, err := h.parkingService.FindSessions(c.Request.Context(), h.orgFromQuery(c), status, plateQuery, h.limit(c), h.offset(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(sessions))
}

func (h *Handler) listGuests(c *gin.Context) {
	var status *string
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		status = &s
	}

	guests, err := h.parkingService.FindGuests(c.Request.Context(), h.orgFromQuery(c), status, h.limit(c), h.offset(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(guests))
}

func (h *Handler) sweepExpired(c *gin.Context) {
	swept, err := h.parkingService.SweepExpiredGuests(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"swept_count": swept,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrStorageUnavailable):
		h.log.Error().Err(err).Msg("storage unavailable")
		c.JSON(http.StatusServiceUnavailable, errorResponse("storage unavailable"))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func (h *Handler) orgFromQuery(c *gin.Context) int64 {
	if o := c.Query("org_id"); o != "" {
		if parsed, err := strconv.ParseInt(o, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return h.config.Parking.DefaultOrgID
}

func (h *Handler) limit(c *gin.Context) int {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func (h *Handler) offset(c *gin.Context) int {
	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return offset
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
