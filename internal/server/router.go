package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/handlog/internal/analysis"
	"github.com/MarcoPoloResearchLab/handlog/internal/hands"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	handIDParam                = "id"
	defaultWaitTimeout         = 65 * time.Second
	defaultHeartbeatInterval   = 25 * time.Second
	errorInvalidRequest        = "invalid_request"
	errorInvalidHandID         = "invalid_hand_id"
	errorHandNotFound          = "hand_not_found"
	errorEmptyText             = "empty_text"
	errorNoAnalysisView        = "analysis_view_not_open"
	errorInternal              = "internal_error"
	errorRealtimeUnavailable   = "realtime_unavailable"
	queryWait                  = "wait"
	headerCacheControl         = "Cache-Control"
	headerConnection           = "Connection"
	headerContentType          = "Content-Type"
	contentTypeEventStream     = "text/event-stream"
	cacheControlNoCache        = "no-cache"
	connectionKeepAlive        = "keep-alive"
	shareResponseContentFormat = "text"
)

var (
	errMissingHands    = errors.New("hand collection dependency required")
	errMissingAnalysis = errors.New("analysis views dependency required")
)

// HandCollection is the coordinator owning the hand list.
type HandCollection interface {
	List() []hands.HandRecord
	Get(id hands.HandID) (hands.HandRecord, bool)
	Create(text string) (hands.HandRecord, error)
	Update(id hands.HandID, text string) (hands.HandRecord, error)
	Delete(id hands.HandID) bool
	AttachAnalysis(id hands.HandID, analysis string) (hands.HandRecord, error)
}

// AnalysisViews drives the per-hand analysis view state.
type AnalysisViews interface {
	Open(ctx context.Context, id hands.HandID) (analysis.Snapshot, error)
	Redo(ctx context.Context, id hands.HandID) (analysis.Snapshot, error)
	Status(id hands.HandID) (analysis.Snapshot, bool)
	Wait(ctx context.Context, id hands.HandID) (analysis.Snapshot, error)
	Dismiss(id hands.HandID) bool
}

// Dependencies wires the collaborators behind the HTTP API.
type Dependencies struct {
	Hands             HandCollection
	Analysis          AnalysisViews
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	WaitTimeout       time.Duration
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin router for hand and analysis routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Hands == nil {
		return nil, errMissingHands
	}
	if deps.Analysis == nil {
		return nil, errMissingAnalysis
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	waitTimeout := deps.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		hands:             deps.Hands,
		analysis:          deps.Analysis,
		realtime:          deps.Realtime,
		logger:            logger,
		waitTimeout:       waitTimeout,
		heartbeatInterval: heartbeatInterval,
	}

	router.GET("/events", handler.handleEvents)

	handRoutes := router.Group("/hands")
	handRoutes.GET("", handler.handleListHands)
	handRoutes.POST("", handler.handleCreateHand)
	handRoutes.GET("/:id", handler.handleGetHand)
	handRoutes.PUT("/:id", handler.handleUpdateHand)
	handRoutes.DELETE("/:id", handler.handleDeleteHand)
	handRoutes.GET("/:id/share", handler.handleShareHand)
	handRoutes.GET("/:id/analysis", handler.handleOpenAnalysis)
	handRoutes.POST("/:id/analysis/redo", handler.handleRedoAnalysis)
	handRoutes.PUT("/:id/analysis", handler.handleAttachAnalysis)
	handRoutes.DELETE("/:id/analysis", handler.handleDismissAnalysis)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "X-Request-ID"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	hands             HandCollection
	analysis          AnalysisViews
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	waitTimeout       time.Duration
	heartbeatInterval time.Duration
}

type handRequestPayload struct {
	Text    string `json:"text"`
	Analyze bool   `json:"analyze"`
}

type attachRequestPayload struct {
	Analysis *string `json:"analysis"`
}

type handResponsePayload struct {
	Hand     hands.HandRecord   `json:"hand"`
	Analysis *analysis.Snapshot `json:"analysis,omitempty"`
}

type handListResponsePayload struct {
	Hands []hands.HandRecord `json:"hands"`
}

type analysisResponsePayload struct {
	Analysis analysis.Snapshot `json:"analysis"`
}

type shareResponsePayload struct {
	Format string `json:"format"`
	Text   string `json:"text"`
	Mailto string `json:"mailto"`
}

func (h *httpHandler) handleListHands(c *gin.Context) {
	c.JSON(http.StatusOK, handListResponsePayload{Hands: h.hands.List()})
}

func (h *httpHandler) handleGetHand(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	record, found := h.hands.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": errorHandNotFound})
		return
	}
	c.JSON(http.StatusOK, handResponsePayload{Hand: record})
}

func (h *httpHandler) handleCreateHand(c *gin.Context) {
	var request handRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}

	record, err := h.hands.Create(request.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := handResponsePayload{Hand: record}
	if request.Analyze {
		snapshot, err := h.analysis.Open(c.Request.Context(), record.ID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response.Analysis = &snapshot
	}
	c.JSON(http.StatusCreated, response)
}

func (h *httpHandler) handleUpdateHand(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	var request handRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}

	record, err := h.hands.Update(id, request.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := handResponsePayload{Hand: record}
	if request.Analyze {
		snapshot, err := h.analysis.Open(c.Request.Context(), record.ID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response.Analysis = &snapshot
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleDeleteHand(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	if h.hands.Delete(id) {
		h.analysis.Dismiss(id)
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleShareHand(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	record, found := h.hands.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": errorHandNotFound})
		return
	}
	c.JSON(http.StatusOK, shareResponsePayload{
		Format: shareResponseContentFormat,
		Text:   analysis.ShareText(record.Text, record.AnalysisText()),
		Mailto: analysis.MailtoURL(record.Text, record.AnalysisText()),
	})
}

func (h *httpHandler) handleOpenAnalysis(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	snapshot, err := h.analysis.Open(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondSnapshot(c, id, snapshot)
}

func (h *httpHandler) handleRedoAnalysis(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	snapshot, err := h.analysis.Redo(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondSnapshot(c, id, snapshot)
}

func (h *httpHandler) handleAttachAnalysis(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	var request attachRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Analysis == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	record, err := h.hands.AttachAnalysis(id, *request.Analysis)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handResponsePayload{Hand: record})
}

func (h *httpHandler) handleDismissAnalysis(c *gin.Context) {
	id, ok := h.handIDFromPath(c)
	if !ok {
		return
	}
	if !h.analysis.Dismiss(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": errorNoAnalysisView})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorRealtimeUnavailable})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header(headerContentType, contentTypeEventStream)
	c.Header(headerCacheControl, cacheControlNoCache)
	c.Header(headerConnection, connectionKeepAlive)
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(time.Now()))
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, message.payload())
			return true
		case now := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload(now))
			return true
		}
	})
}

func (h *httpHandler) respondSnapshot(c *gin.Context, id hands.HandID, snapshot analysis.Snapshot) {
	if wait, _ := strconv.ParseBool(c.Query(queryWait)); wait && snapshot.State == analysis.StatePending {
		waitCtx, cancel := context.WithTimeout(c.Request.Context(), h.waitTimeout)
		defer cancel()
		settled, err := h.analysis.Wait(waitCtx, id)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			h.respondError(c, err)
			return
		}
		snapshot = settled
	}
	c.JSON(http.StatusOK, analysisResponsePayload{Analysis: snapshot})
}

func (h *httpHandler) handIDFromPath(c *gin.Context) (hands.HandID, bool) {
	id, err := hands.NewHandID(c.Param(handIDParam))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidHandID})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	reason := errorInternal
	switch {
	case errors.Is(err, hands.ErrHandNotFound):
		status = http.StatusNotFound
		reason = errorHandNotFound
	case errors.Is(err, hands.ErrEmptyHandText):
		status = http.StatusBadRequest
		reason = errorEmptyText
	case errors.Is(err, hands.ErrInvalidHandID):
		status = http.StatusBadRequest
		reason = errorInvalidHandID
	default:
		h.logger.Error("hand request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	payload := gin.H{"error": reason}
	var serviceErr *hands.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	c.JSON(status, payload)
}
