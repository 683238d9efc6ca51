package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/middleware"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

const maxSessionKeyLength = 128

// Conversation is the controller surface the channel adapters need.
type Conversation interface {
	HandleTurn(ctx context.Context, in domain.InboundMessage) (*domain.TurnReply, error)
	Abandon(ctx context.Context, key string, channel domain.Channel) (*domain.TurnReply, error)
	FailureText(text, hint string) string
}

// RegistrationHandler is the web chat channel adapter.
type RegistrationHandler struct {
	conversation Conversation
	logger       *zap.Logger
	newKey       func() string
}

// NewRegistrationHandler wires the web adapter to the controller.
func NewRegistrationHandler(conversation Conversation, log *zap.Logger) *RegistrationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationHandler{
		conversation: conversation,
		logger:       log,
		newKey:       func() string { return "web-" + ulid.Make().String() },
	}
}

// RegisterRoutes binds the web chat endpoints.
func (h *RegistrationHandler) RegisterRoutes(r gin.IRoutes, middlewares ...gin.HandlerFunc) {
	r.POST("/message", chain(middlewares, h.Message)...)
	r.POST("/abandon", chain(middlewares, h.Abandon)...)
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	out = append(out, middlewares...)
	return append(out, handler)
}

// Message godoc
// @Summary Send one registration chat turn
// @Description Applies the farmer's message to the registration conversation and returns the assistant reply.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationMessageRequest true "Chat turn"
// @Success 200 {object} RegistrationMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} TurnFailureResponse
// @Router /api/v1/registration/message [post]
func (h *RegistrationHandler) Message(c *gin.Context) {
	var req RegistrationMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid message payload"))
		return
	}

	req.SessionKey = strings.TrimSpace(req.SessionKey)
	if len(req.SessionKey) > maxSessionKeyLength {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_key is too long"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "text is required"))
		return
	}
	if req.SessionKey == "" {
		req.SessionKey = h.newKey()
	}
	middleware.SetSessionKey(c, req.SessionKey)

	hint := c.GetHeader("Accept-Language")
	reply, err := h.conversation.HandleTurn(c.Request.Context(), domain.InboundMessage{
		SessionKey: req.SessionKey,
		Channel:    domain.ChannelWeb,
		Text:       req.Text,
		LocaleHint: hint,
	})
	if err != nil {
		h.respondTurnError(c, err, req.Text, hint, req.SessionKey)
		return
	}

	c.JSON(http.StatusOK, newMessageResponse(reply))
}

// Abandon godoc
// @Summary Abandon a registration conversation
// @Description Closes the conversation; closing an already closed one is a no-op.
// @Tags Registration
// @Accept json
// @Produce json
// @Param request body RegistrationAbandonRequest true "Session to close"
// @Success 200 {object} RegistrationMessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} TurnFailureResponse
// @Router /api/v1/registration/abandon [post]
func (h *RegistrationHandler) Abandon(c *gin.Context) {
	var req RegistrationAbandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_key is required"))
		return
	}

	req.SessionKey = strings.TrimSpace(req.SessionKey)
	middleware.SetSessionKey(c, req.SessionKey)
	reply, err := h.conversation.Abandon(c.Request.Context(), req.SessionKey, domain.ChannelWeb)
	if err != nil {
		h.respondTurnError(c, err, "", c.GetHeader("Accept-Language"), req.SessionKey)
		return
	}
	c.JSON(http.StatusOK, newMessageResponse(reply))
}

func (h *RegistrationHandler) respondTurnError(c *gin.Context, err error, text, hint, key string) {
	status, message := mapError(err, turnErrorCases, http.StatusInternalServerError, "registration turn failed")
	if status == http.StatusBadRequest {
		c.JSON(status, NewErrorResponse(c, message))
		return
	}

	fields := []zap.Field{
		zap.String("session", logger.MaskSessionKey(key)),
		zap.Int("status", status),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, usecase.ErrStorageUnavailable):
		h.logger.Error("registration storage unavailable", fields...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("registration turn cancelled", fields...)
	default:
		h.logger.Error("registration turn failed", fields...)
	}
	_ = c.Error(err)

	errResp := NewErrorResponse(c, message)
	c.JSON(status, TurnFailureResponse{
		ReplyText: h.conversation.FailureText(text, hint),
		Error:     errResp.Error,
		TraceID:   errResp.TraceID,
	})
}

func newMessageResponse(reply *domain.TurnReply) RegistrationMessageResponse {
	summary := reply.Summary
	if summary == nil {
		summary = map[string]string{}
	}
	return RegistrationMessageResponse{
		SessionKey:       reply.SessionKey,
		ReplyText:        reply.Text,
		Completed:        reply.Completed,
		Returning:        reply.Returning,
		Status:           string(reply.Status),
		State:            string(reply.State),
		Locale:           reply.Locale,
		CollectedSummary: summary,
	}
}
