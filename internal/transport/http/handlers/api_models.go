package handlers

import (
	"encoding/xml"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// RegistrationMessageRequest is one web chat turn. An empty session_key
// starts a new conversation and the issued key is returned.
type RegistrationMessageRequest struct {
	SessionKey string `json:"session_key"`
	Text       string `json:"text"`
}

// RegistrationMessageResponse carries the assistant reply for a web turn.
type RegistrationMessageResponse struct {
	SessionKey       string            `json:"session_key"`
	ReplyText        string            `json:"reply_text"`
	Completed        bool              `json:"completed"`
	Returning        bool              `json:"returning,omitempty"`
	Status           string            `json:"status"`
	State            string            `json:"state"`
	Locale           string            `json:"locale"`
	CollectedSummary map[string]string `json:"collected_summary"`
}

// RegistrationAbandonRequest closes a web conversation.
type RegistrationAbandonRequest struct {
	SessionKey string `json:"session_key" binding:"required"`
}

// TurnFailureResponse is returned when a turn could not be processed.
type TurnFailureResponse struct {
	ReplyText string `json:"reply_text"`
	Error     string `json:"error"`
	TraceID   string `json:"trace_id,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness check results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// InboundDelivery is a messaging webhook delivery stripped of its provider envelope.
type InboundDelivery struct {
	FromNumber string
	Body       string
	MessageID  string
}

// twimlResponse is the Twilio Messaging reply document.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

// metaWebhookPayload is the subset of a WhatsApp Cloud API notification we read.
type metaWebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// MetaReply is returned to the relay for each processed WhatsApp message.
type MetaReply struct {
	To        string `json:"to"`
	MessageID string `json:"message_id"`
	Text      string `json:"text,omitempty"`
}

// MetaWebhookResponse lists the replies for one notification.
type MetaWebhookResponse struct {
	Replies []MetaReply `json:"replies"`
}
