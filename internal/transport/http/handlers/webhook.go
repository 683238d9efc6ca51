package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/middleware"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

// Supported messaging providers.
const (
	ProviderTwilio = "twilio"
	ProviderMeta   = "meta"
)

const defaultDedupTTL = 24 * time.Hour

var errDedupUnavailable = errors.New("webhook dedup store unavailable")

// WebhookOptions configures the messaging adapter.
type WebhookOptions struct {
	Provider    string
	DedupTTL    time.Duration
	VerifyToken string
}

// WebhookHandler is the messaging channel adapter. The sender's phone number
// is the session key; provider message ids guard against redelivery.
type WebhookHandler struct {
	conversation Conversation
	dedup        port.MessageDeduplicator
	metrics      port.RegistrationMetrics
	opts         WebhookOptions
	logger       *zap.Logger
}

// NewWebhookHandler wires the messaging adapter.
func NewWebhookHandler(conversation Conversation, dedup port.MessageDeduplicator, metrics port.RegistrationMetrics, opts WebhookOptions, log *zap.Logger) *WebhookHandler {
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = defaultDedupTTL
	}
	if opts.Provider == "" {
		opts.Provider = ProviderTwilio
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{conversation: conversation, dedup: dedup, metrics: metrics, opts: opts, logger: log}
}

// RegisterRoutes binds the webhook for the configured provider.
func (h *WebhookHandler) RegisterRoutes(r gin.IRoutes, middlewares ...gin.HandlerFunc) {
	switch h.opts.Provider {
	case ProviderMeta:
		r.GET("/messaging", h.MetaVerify)
		r.POST("/messaging", chain(middlewares, h.Meta)...)
	default:
		r.POST("/messaging", chain(middlewares, h.Twilio)...)
	}
}

// Twilio godoc
// @Summary Twilio messaging webhook
// @Description Applies an inbound SMS or WhatsApp message to the sender's registration and answers with TwiML.
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Produce xml
// @Param From formData string true "Sender address"
// @Param Body formData string false "Message text"
// @Param MessageSid formData string true "Provider message id"
// @Success 200 {string} string "TwiML response"
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/webhooks/messaging [post]
func (h *WebhookHandler) Twilio(c *gin.Context) {
	delivery := InboundDelivery{
		FromNumber: c.PostForm("From"),
		Body:       c.PostForm("Body"),
		MessageID:  c.PostForm("MessageSid"),
	}
	if strings.TrimSpace(delivery.FromNumber) == "" || strings.TrimSpace(delivery.MessageID) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "From and MessageSid are required"))
		return
	}
	middleware.SetSessionKey(c, normalizeSender(delivery.FromNumber))

	text, err := h.process(c.Request.Context(), delivery)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "webhook temporarily unavailable"))
		return
	}

	resp := twimlResponse{}
	if text != "" {
		resp.Message = &text
	}
	c.XML(http.StatusOK, resp)
}

// MetaVerify answers the WhatsApp Cloud API subscription handshake.
func (h *WebhookHandler) MetaVerify(c *gin.Context) {
	token := c.Query("hub.verify_token")
	if c.Query("hub.mode") != "subscribe" || h.opts.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.VerifyToken)) != 1 {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "verification failed"))
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Meta godoc
// @Summary WhatsApp Cloud API webhook
// @Description Applies each inbound message of a notification to its sender's registration and returns the replies.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} MetaWebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/webhooks/messaging [post]
func (h *WebhookHandler) Meta(c *gin.Context) {
	var payload metaWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid webhook payload"))
		return
	}

	resp := MetaWebhookResponse{Replies: []MetaReply{}}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.From == "" || msg.ID == "" {
					continue
				}
				text, err := h.process(c.Request.Context(), InboundDelivery{
					FromNumber: msg.From,
					Body:       msg.Text.Body,
					MessageID:  msg.ID,
				})
				if err != nil {
					c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "webhook temporarily unavailable"))
					return
				}
				if text == "" {
					continue
				}
				resp.Replies = append(resp.Replies, MetaReply{
					To:        normalizeSender(msg.From),
					MessageID: msg.ID,
					Text:      text,
				})
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Throttled acknowledges a rate-limited delivery without a reply so the
// provider does not keep redelivering it.
func (h *WebhookHandler) Throttled(c *gin.Context, _ time.Duration) {
	if h.opts.Provider == ProviderMeta {
		c.JSON(http.StatusOK, MetaWebhookResponse{Replies: []MetaReply{}})
		return
	}
	c.XML(http.StatusOK, twimlResponse{})
}

// process runs one delivery at most once. It returns the reply to send, or
// an empty string when nothing should be sent. An error means the provider
// should redeliver.
func (h *WebhookHandler) process(ctx context.Context, d InboundDelivery) (string, error) {
	key := normalizeSender(d.FromNumber)
	log := h.logger.With(
		zap.String("sender", logger.MaskPhone(key)),
		zap.String("message_id", d.MessageID),
	)

	claim, err := h.dedup.Claim(ctx, d.MessageID, h.opts.DedupTTL)
	if err != nil {
		log.Error("webhook dedup claim failed", zap.Error(err))
		return "", errDedupUnavailable
	}
	if claim.Done {
		if h.metrics != nil {
			h.metrics.IncWebhookReplay()
		}
		log.Info("webhook redelivery answered from cache")
		return claim.Reply, nil
	}
	if !claim.Claimed {
		log.Info("webhook redelivery while first attempt in flight")
		return "", nil
	}

	reply, err := h.conversation.HandleTurn(ctx, domain.InboundMessage{
		SessionKey: key,
		Channel:    domain.ChannelMessaging,
		Text:       d.Body,
		MessageID:  d.MessageID,
	})
	if err != nil {
		if relErr := h.dedup.Release(context.WithoutCancel(ctx), d.MessageID); relErr != nil {
			log.Warn("failed to release webhook claim", zap.Error(relErr))
		}
		if errors.Is(err, usecase.ErrStorageUnavailable) {
			log.Error("registration storage unavailable", zap.Error(err))
		} else {
			log.Error("registration turn failed", zap.Error(err))
		}
		return h.conversation.FailureText(d.Body, ""), nil
	}

	if err := h.dedup.Complete(context.WithoutCancel(ctx), d.MessageID, reply.Text, h.opts.DedupTTL); err != nil {
		log.Warn("failed to record webhook reply", zap.Error(err))
	}
	return reply.Text, nil
}

// normalizeSender turns provider addresses such as "whatsapp:+386..." or
// "38641..." into an E.164 session key.
func normalizeSender(from string) string {
	s := strings.TrimSpace(from)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ReplaceAll(s, " ", "")
	if s != "" && !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}
