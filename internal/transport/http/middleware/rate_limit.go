package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	appLogger "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
)

const (
	rateLimitProblemType  = "/problems/registration/too-many-messages"
	rateLimitProblemTitle = "Too many messages"
)

// RateLimitStore defines the persistence operations required by the middleware.
type RateLimitStore = port.RateLimitStore

// IdentifierFunc extracts the identifier a rule counts against. ok=false
// skips the rule for this request.
type IdentifierFunc func(*gin.Context) (id string, ok bool)

// LimitedResponder writes the response for a rejected request. Messaging
// providers expect their own acknowledgement format rather than a problem
// document.
type LimitedResponder func(c *gin.Context, retryAfter time.Duration)

// RateLimitRule allows Limit requests per identifier in any sliding Window.
// A nil Responder answers 429 with a problem document.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
	Responder  LimitedResponder
}

// ProblemDetails is the RFC 9457 body sent to web chat clients that are
// sending too fast.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// RateLimiter throttles registration turns per client IP and per messaging
// sender. It fails open: a store outage never blocks a farmer.
type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a limiter over store.
func NewRateLimiter(store RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces time.Now.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// SenderIdentifier scopes webhook limits to the messaging sender read from
// a form-encoded delivery, falling back to the client IP.
func SenderIdentifier() IdentifierFunc {
	clientIP := ClientIPIdentifier()
	return func(c *gin.Context) (string, bool) {
		if from := normalizeSender(c.PostForm("From")); from != "" {
			return "sender:" + from, true
		}
		return clientIP(c)
	}
}

// normalizeSender strips the channel prefix and spacing so that
// "whatsapp:+386 41 348 050" and "+38641348050" share one budget.
func normalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.IndexByte(from, ':'); i >= 0 {
		from = from[i+1:]
	}
	return strings.Join(strings.Fields(from), "")
}

// ClientIPIdentifier scopes limits to the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// budget is what one rule leaves for an identifier after this request.
type budget struct {
	limit     int
	remaining int
	exhausted bool
	reset     time.Time
	now       time.Time
}

func (b budget) retryAfter() time.Duration {
	return max(b.reset.Sub(b.now), 0)
}

func (b budget) tighterThan(o budget) bool {
	if b.remaining != o.remaining {
		return b.remaining < o.remaining
	}
	return b.reset.Before(o.reset)
}

func (b budget) writeHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(b.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(b.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(b.reset.Unix(), 10))
	if b.exhausted {
		h.Set("Retry-After", strconv.Itoa(ceilSeconds(b.retryAfter())))
	}
}

// RateLimit checks every rule in order. The first exhausted rule rejects
// the request; otherwise the tightest remaining budget is advertised in the
// X-RateLimit headers.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := slices.DeleteFunc(slices.Clone(rules), func(r RateLimitRule) bool {
		return r.Identifier == nil || r.Limit <= 0 || r.Window <= 0
	})
	for i := range active {
		if active[i].Name == "" {
			active[i].Name = "default"
		}
	}

	return func(c *gin.Context) {
		if rl.store == nil || len(active) == 0 {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *budget
		for _, rule := range active {
			id, ok := rule.Identifier(c)
			if !ok || id == "" {
				continue
			}
			b, err := rl.consume(c.Request.Context(), rule, id, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed, allowing request",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskString(id)),
					zap.Error(err),
				)
				continue
			}
			if b.exhausted {
				rl.reject(c, rule, id, b)
				return
			}
			if tightest == nil || b.tighterThan(*tightest) {
				tightest = &b
			}
		}
		if tightest != nil {
			tightest.writeHeaders(c.Writer.Header())
		}
		c.Next()
	}
}

// consume records one attempt unless the window is already full.
func (rl *RateLimiter) consume(ctx context.Context, rule RateLimitRule, id string, now time.Time) (budget, error) {
	key := storageKey(rule.Name, id)
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return budget{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return budget{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return budget{}, err
	}

	b := budget{limit: rule.Limit, reset: now.Add(rule.Window), now: now}
	if found {
		b.reset = oldest.Add(rule.Window)
	}
	if count >= rule.Limit {
		b.exhausted = true
		return b, nil
	}
	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return budget{}, err
	}
	b.remaining = rule.Limit - count - 1
	return b, nil
}

func (rl *RateLimiter) reject(c *gin.Context, rule RateLimitRule, id string, b budget) {
	b.writeHeaders(c.Writer.Header())
	rl.logger.Info("rate limit exceeded",
		zap.String("rule", rule.Name),
		zap.String("identifier", appLogger.MaskString(id)),
		zap.Duration("retry_after", b.retryAfter()),
	)

	if rule.Responder != nil {
		rule.Responder(c, b.retryAfter())
		c.Abort()
		return
	}

	seconds := ceilSeconds(b.retryAfter())
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Messages are arriving faster than the assistant can answer. Wait %d seconds and send your answer again.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

// storageKey hashes the identifier, which may be a phone number, so the
// store never holds it in clear text.
func storageKey(rule, identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return rule + ":" + hex.EncodeToString(sum[:12])
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
