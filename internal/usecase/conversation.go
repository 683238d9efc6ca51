package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/logger"
)

const (
	defaultDigressionThreshold = 3
	defaultHistoryLimit        = 20
	defaultMaxMessageRunes     = 2000
	tracerName                 = "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

// Turn outcomes reported to metrics and traces.
const (
	OutcomeProgress   = "progress"
	OutcomeRejected   = "rejected"
	OutcomeDigression = "digression"
	OutcomeCompleted  = "completed"
	OutcomeReturning  = "returning"
	OutcomeAbandoned  = "abandoned"
	OutcomeError      = "error"
)

// ConversationConfig tunes the controller.
type ConversationConfig struct {
	// DigressionThreshold is the number of consecutive off-topic turns
	// tolerated before replies insist on resuming registration.
	DigressionThreshold int
	HistoryLimit        int
	MaxMessageRunes     int
}

// ConversationDeps are the collaborators of a ConversationController.
// Events, Metrics, Logger, Tracer, Locks and Leases are optional. Leases
// is required when several processes share the session store.
type ConversationDeps struct {
	Sessions   port.SessionStore
	Extractor  *ExtractionAdapter
	Validator  *FieldValidator
	Detector   *LanguageDetector
	Duplicates *DuplicateDetector
	Completion *CompletionHandler
	Hasher     port.PasswordHasher
	Replies    *Replies
	Locks      *KeyedMutex
	Leases     port.SessionLease
	Events     port.EventPublisher
	Metrics    port.RegistrationMetrics
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// ConversationController drives one registration turn at a time per session.
type ConversationController struct {
	sessions   port.SessionStore
	extractor  *ExtractionAdapter
	validator  *FieldValidator
	detector   *LanguageDetector
	duplicates *DuplicateDetector
	completion *CompletionHandler
	hasher     port.PasswordHasher
	replies    *Replies
	locks      *KeyedMutex
	leases     port.SessionLease
	events     port.EventPublisher
	metrics    port.RegistrationMetrics
	logger     *zap.Logger
	tracer     trace.Tracer
	cfg        ConversationConfig
	now        func() time.Time
}

// NewConversationController validates the wiring and applies defaults.
func NewConversationController(deps ConversationDeps, cfg ConversationConfig) (*ConversationController, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extraction adapter is required")
	case deps.Detector == nil:
		return nil, fmt.Errorf("language detector is required")
	case deps.Duplicates == nil:
		return nil, fmt.Errorf("duplicate detector is required")
	case deps.Completion == nil:
		return nil, fmt.Errorf("completion handler is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	}
	if deps.Validator == nil {
		deps.Validator = NewFieldValidator(nil)
	}
	if deps.Replies == nil {
		deps.Replies = NewReplies(deps.Detector.Fallback())
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if cfg.DigressionThreshold <= 0 {
		cfg.DigressionThreshold = defaultDigressionThreshold
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = defaultMaxMessageRunes
	}
	return &ConversationController{
		sessions:   deps.Sessions,
		extractor:  deps.Extractor,
		validator:  deps.Validator,
		detector:   deps.Detector,
		duplicates: deps.Duplicates,
		completion: deps.Completion,
		hasher:     deps.Hasher,
		replies:    deps.Replies,
		locks:      deps.Locks,
		leases:     deps.Leases,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		tracer:     deps.Tracer,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the controller clock, mainly for tests.
func (c *ConversationController) WithClock(now func() time.Time) *ConversationController {
	if now != nil {
		c.now = now
	}
	return c
}

// Locks exposes the per-session lock table so the sweeper can share it.
func (c *ConversationController) Locks() *KeyedMutex {
	return c.locks
}

// lockSession serializes turns on storeKey inside this process and, when a
// lease is configured, against other processes sharing the store.
func (c *ConversationController) lockSession(ctx context.Context, storeKey string) (func(), error) {
	release, err := c.locks.Lock(ctx, storeKey)
	if err != nil {
		return nil, err
	}
	if c.leases == nil {
		return release, nil
	}
	releaseLease, err := c.leases.Acquire(ctx, storeKey)
	if err != nil {
		release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: acquire session lease: %w", ErrStorageUnavailable, err)
	}
	return func() {
		releaseLease()
		release()
	}, nil
}

// turn accumulates what happened while processing one message.
type turn struct {
	session *domain.RegistrationSession
	text    string
	isNew   bool

	progress         bool
	rejections       []*ValidationError
	mismatch         bool
	notices          []string
	warnings         []string
	askConfirm       bool
	passwordQuestion bool
	secret           bool
	modelReply       string

	abandoned bool
	completed bool
	returning bool
	name      string
}

func (t *turn) digressed() bool {
	return !t.progress && len(t.rejections) == 0 && !t.mismatch
}

func (t *turn) outcome() string {
	switch {
	case t.abandoned:
		return OutcomeAbandoned
	case t.returning:
		return OutcomeReturning
	case t.completed:
		return OutcomeCompleted
	case len(t.rejections) > 0 || t.mismatch:
		return OutcomeRejected
	case t.progress:
		return OutcomeProgress
	default:
		return OutcomeDigression
	}
}

// HandleTurn applies one inbound message to its session and returns the reply.
// Turns for one session key are serialized; different keys run in parallel.
// When the session store or farmer directory fails the session is left
// exactly as it was and ErrStorageUnavailable is returned.
func (c *ConversationController) HandleTurn(ctx context.Context, in domain.InboundMessage) (reply *domain.TurnReply, err error) {
	if strings.TrimSpace(in.SessionKey) == "" || !in.Channel.Valid() {
		return nil, ErrInvalidMessage
	}
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "registration.turn", trace.WithAttributes(
		attribute.String("registration.channel", string(in.Channel)),
	))
	outcome := OutcomeError
	defer func() {
		c.metrics.ObserveTurn(string(in.Channel), outcome, time.Since(start))
		span.SetAttributes(attribute.String("registration.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	storeKey := domain.StoreKey(in.Channel, in.SessionKey)
	log := c.logger.With(
		zap.String("session", logger.MaskSessionKey(in.SessionKey)),
		zap.String("channel", string(in.Channel)),
	)

	release, err := c.lockSession(ctx, storeKey)
	if err != nil {
		log.Warn("failed to lock session", zap.Error(err))
		return nil, err
	}
	defer release()

	stored, err := c.sessions.GetOrCreate(ctx, storeKey, in.Channel, c.detector.Fallback())
	if err != nil {
		log.Error("failed to load session", zap.Error(err))
		return nil, fmt.Errorf("%w: load session: %w", ErrStorageUnavailable, err)
	}

	now := c.now()
	session := stored.Clone()
	if session.Terminal() {
		log.Debug("starting a new registration over a closed session", zap.String("status", string(session.Status)))
		session = domain.NewRegistrationSession(storeKey, in.Channel, session.Locale, now)
	}

	t := &turn{
		session: session,
		text:    truncateRunes(strings.TrimSpace(in.Text), c.cfg.MaxMessageRunes),
		isNew:   len(session.History) == 0 && len(session.Collected) == 0,
	}
	previous := session.Locale
	if t.isNew {
		previous = ""
	}
	session.Locale = c.detector.DetectWithHint(t.text, in.LocaleHint, previous)

	if c.extractor.Rules().IsCancel(t.text) {
		c.abandon(t, now)
	} else if err := c.advance(ctx, t, now); err != nil {
		log.Warn("registration turn failed", zap.Error(err))
		return nil, err
	}

	if !session.Terminal() {
		switch {
		case t.progress:
			session.DigressionCount = 0
		case t.digressed():
			session.DigressionCount++
		}
	}

	text := c.compose(t)

	if !session.Terminal() {
		userText := t.text
		if t.secret {
			userText = domain.RedactedText
		}
		session.AppendHistory(domain.RoleUser, userText, now, c.cfg.HistoryLimit)
		session.AppendHistory(domain.RoleAssistant, text, now, c.cfg.HistoryLimit)
	}
	session.Touch(now)

	if err := c.sessions.Save(ctx, session); err != nil {
		log.Error("failed to save session", zap.Error(err))
		return nil, fmt.Errorf("%w: save session: %w", ErrStorageUnavailable, err)
	}

	if session.Terminal() {
		c.publishClosed(ctx, session, now)
	}

	outcome = t.outcome()
	log.Info("registration turn",
		zap.String("state", string(session.State())),
		zap.String("outcome", outcome),
		zap.String("locale", session.Locale),
		zap.Int("missing", len(session.Missing())),
	)
	return c.reply(in.SessionKey, session, text), nil
}

// Abandon closes the session at key on explicit request. Closing an
// already closed session is a no-op that reports its status.
func (c *ConversationController) Abandon(ctx context.Context, key string, channel domain.Channel) (*domain.TurnReply, error) {
	if strings.TrimSpace(key) == "" || !channel.Valid() {
		return nil, ErrInvalidMessage
	}
	storeKey := domain.StoreKey(channel, key)
	release, err := c.lockSession(ctx, storeKey)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err := c.sessions.GetOrCreate(ctx, storeKey, channel, c.detector.Fallback())
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %w", ErrStorageUnavailable, err)
	}
	session := stored.Clone()
	if session.Terminal() {
		return c.reply(key, session, c.replies.Text(session.Locale, msgAlreadyRegistered)), nil
	}
	now := c.now()
	t := &turn{session: session}
	c.abandon(t, now)
	if err := c.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: save session: %w", ErrStorageUnavailable, err)
	}
	c.publishClosed(ctx, session, now)
	c.metrics.ObserveTurn(string(channel), OutcomeAbandoned, 0)
	return c.reply(key, session, c.compose(t)), nil
}

// FailureText is the generic "try again" reply channel adapters send when a
// turn fails on infrastructure, in the language the message appears to use.
func (c *ConversationController) FailureText(text, hint string) string {
	return c.replies.Text(c.detector.DetectWithHint(text, hint, ""), msgTryAgain)
}

func (c *ConversationController) advance(ctx context.Context, t *turn, now time.Time) error {
	session := t.session
	var err error
	if session.PasswordConfirmationPending() {
		err = c.confirmPassword(t)
	} else if next, ok := session.NextMissing(); ok && next == domain.FieldPassword {
		err = c.capturePassword(t)
	} else {
		err = c.collect(ctx, t, now)
	}
	if err != nil || session.Terminal() {
		return err
	}
	if len(session.Missing()) == 0 {
		return c.complete(ctx, t)
	}
	return nil
}

func (c *ConversationController) collect(ctx context.Context, t *turn, now time.Time) error {
	session := t.session
	collected := make(map[domain.Field]string, len(session.Collected))
	for f, v := range session.Collected {
		collected[f] = v
	}
	res := c.extractor.Extract(ctx, domain.ExtractionRequest{
		Message:     t.text,
		Locale:      session.Locale,
		Missing:     session.Missing(),
		Collected:   collected,
		History:     session.History,
		Digressions: session.DigressionCount,
		Channel:     session.Channel,
	})
	if res.Abandon {
		c.abandon(t, now)
		return nil
	}
	if res.Strategy == StrategyModel {
		t.modelReply = res.ReplyText
	}

	phoneAccepted, nameAccepted := false, false
	for _, f := range session.Missing() {
		value, ok := res.Updates[f]
		if !ok || f == domain.FieldPassword {
			continue
		}
		verdict := c.validator.Validate(f, value, session.Collected)
		if !verdict.Accepted {
			c.rejectField(t, verdict.Err)
			continue
		}
		session.Collected[f] = verdict.Value
		t.progress = true
		switch f {
		case domain.FieldPhoneNumber:
			phoneAccepted = true
		case domain.FieldFirstName, domain.FieldLastName:
			nameAccepted = true
		}
	}
	switch {
	case phoneAccepted:
		return c.checkDuplicates(ctx, t, now)
	case nameAccepted && !session.PotentialNoticeShown && session.Has(domain.FieldPhoneNumber) &&
		session.Has(domain.FieldFirstName) && session.Has(domain.FieldLastName):
		// The phone arrived before the names; only the name match is still open.
		return c.checkSimilarNames(ctx, t)
	}
	return nil
}

func (c *ConversationController) checkDuplicates(ctx context.Context, t *turn, now time.Time) error {
	ctx, span := c.startDuplicateCheck(ctx)
	defer span.End()

	session := t.session
	match, err := c.duplicates.FindMatches(ctx,
		session.Collected[domain.FieldPhoneNumber],
		session.Collected[domain.FieldFirstName],
		session.Collected[domain.FieldLastName],
	)
	if err != nil {
		span.RecordError(err)
		return err
	}
	switch match.Kind {
	case domain.MatchConfirmed:
		t.name = session.Collected[domain.FieldFirstName]
		if match.Account != nil && match.Account.FirstName != "" {
			t.name = match.Account.FirstName
		}
		session.AccountID = match.AccountID
		session.Returning = true
		session.Close(domain.SessionStatusCompleted, now)
		session.Anonymize()
		t.returning = true
	case domain.MatchPotential:
		notePotential(t)
	}
	span.SetAttributes(attribute.String("registration.duplicate_match", string(match.Kind)))
	return nil
}

func (c *ConversationController) checkSimilarNames(ctx context.Context, t *turn) error {
	ctx, span := c.startDuplicateCheck(ctx)
	defer span.End()

	match, err := c.duplicates.FindSimilar(ctx,
		t.session.Collected[domain.FieldFirstName],
		t.session.Collected[domain.FieldLastName],
	)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if match.Kind == domain.MatchPotential {
		notePotential(t)
	}
	span.SetAttributes(attribute.String("registration.duplicate_match", string(match.Kind)))
	return nil
}

func (c *ConversationController) startDuplicateCheck(ctx context.Context) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "registration.duplicate_check", trace.WithAttributes(
		attribute.String("registration.state", string(domain.StateDuplicateCheck)),
	))
}

func notePotential(t *turn) {
	if t.session.PotentialNoticeShown {
		return
	}
	t.session.PotentialNoticeShown = true
	t.notices = append(t.notices, msgPotentialDup)
}

func (c *ConversationController) capturePassword(t *turn) error {
	if looksLikeQuestion(t.text) {
		t.passwordQuestion = true
		return nil
	}
	t.secret = true
	verdict := c.validator.ValidatePassword(t.text, t.session.Collected)
	if !verdict.Accepted {
		c.rejectField(t, verdict.Err)
		return nil
	}
	hash, err := c.hasher.Hash(t.text)
	if err != nil {
		return fmt.Errorf("hash password candidate: %w", err)
	}
	t.session.PendingPasswordHash = hash
	t.progress = true
	t.askConfirm = true
	t.warnings = verdict.Warnings
	return nil
}

func (c *ConversationController) confirmPassword(t *turn) error {
	t.secret = true
	session := t.session
	ok, err := c.hasher.Verify(t.text, session.PendingPasswordHash)
	if err != nil {
		return fmt.Errorf("verify password confirmation: %w", err)
	}
	if ok {
		session.PasswordHash = session.PendingPasswordHash
		session.PendingPasswordHash = ""
		t.progress = true
		return nil
	}
	session.PendingPasswordHash = ""
	session.AttemptCounts[domain.FieldPassword]++
	t.mismatch = true
	c.metrics.IncValidationRejected(string(domain.FieldPassword), CodeMismatch)
	return nil
}

func (c *ConversationController) complete(ctx context.Context, t *turn) error {
	name := t.session.Collected[domain.FieldFirstName]
	completion, err := c.completion.Complete(ctx, t.session)
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		return fmt.Errorf("complete registration: %w", err)
	}
	if !completion.Created {
		c.logger.Info("completion resolved to an existing account", zap.String("account_id", completion.Account.ID))
	}
	t.completed = true
	t.name = name
	return nil
}

func (c *ConversationController) abandon(t *turn, now time.Time) {
	t.session.Close(domain.SessionStatusAbandoned, now)
	t.session.Anonymize()
	t.abandoned = true
}

func (c *ConversationController) rejectField(t *turn, verr *ValidationError) {
	t.session.AttemptCounts[verr.Field]++
	t.rejections = append(t.rejections, verr)
	c.metrics.IncValidationRejected(string(verr.Field), verr.Code)
}

// compose builds the reply. Deterministic catalog text is used whenever the
// turn carries a rejection, notice or password step; otherwise a model
// reply is preferred when one exists.
func (c *ConversationController) compose(t *turn) string {
	session := t.session
	locale := session.Locale
	r := c.replies

	switch {
	case t.abandoned:
		return r.Text(locale, msgAbandoned)
	case t.returning:
		if t.name != "" {
			return r.Text(locale, msgWelcomeBackNamed, t.name)
		}
		return r.Text(locale, msgWelcomeBack)
	case t.completed:
		return r.Text(locale, msgCompleted, t.name)
	}

	next, hasNext := session.NextMissing()
	deterministic := len(t.rejections) > 0 || t.mismatch || len(t.notices) > 0 ||
		t.passwordQuestion || t.askConfirm || (hasNext && next == domain.FieldPassword)
	if t.modelReply != "" && !deterministic && !(t.digressed() && session.DigressionCount > c.cfg.DigressionThreshold) {
		return t.modelReply
	}

	parts := make([]string, 0, 6)
	if t.isNew {
		parts = append(parts, r.Text(locale, msgGreeting))
	}
	for _, verr := range t.rejections {
		parts = append(parts, r.Rejection(locale, verr, session.AttemptCounts[verr.Field]))
	}
	if t.mismatch {
		parts = append(parts, r.Text(locale, msgPasswordMismatch))
	}
	for _, key := range t.notices {
		parts = append(parts, r.Text(locale, key))
	}
	if t.askConfirm {
		parts = append(parts, r.Text(locale, msgAck), r.Warnings(locale, t.warnings), r.Text(locale, msgConfirmPassword))
		return Join(parts...)
	}
	switch {
	case t.passwordQuestion:
		parts = append(parts, r.Text(locale, msgPasswordQuestion))
	case t.digressed() && session.DigressionCount > c.cfg.DigressionThreshold:
		parts = append(parts, r.Text(locale, msgInsist))
	case t.digressed() && !t.isNew:
		parts = append(parts, r.Text(locale, msgNotUnderstood))
	case t.progress && len(t.rejections) == 0:
		parts = append(parts, r.Text(locale, msgAck))
	}
	if hasNext {
		parts = append(parts, r.Ask(locale, next))
	}
	return Join(parts...)
}

func (c *ConversationController) reply(key string, session *domain.RegistrationSession, text string) *domain.TurnReply {
	return &domain.TurnReply{
		SessionKey: key,
		Text:       text,
		Locale:     session.Locale,
		Status:     session.Status,
		State:      session.State(),
		Completed:  session.Status == domain.SessionStatusCompleted,
		Returning:  session.Returning,
		AccountID:  session.AccountID,
		Summary:    session.Summary(),
	}
}

func (c *ConversationController) publishClosed(ctx context.Context, session *domain.RegistrationSession, now time.Time) {
	c.metrics.IncSessionsClosed(string(session.Status), 1)
	event := domain.RegistrationClosedEvent{
		Channel:    session.Channel,
		Status:     session.Status,
		AccountID:  session.AccountID,
		Returning:  session.Returning,
		Duration:   now.Sub(session.CreatedAt),
		OccurredAt: now,
	}
	if err := c.events.PublishRegistrationClosed(ctx, event); err != nil {
		c.logger.Warn("failed to publish registration closed event", zap.String("status", string(session.Status)), zap.Error(err))
	}
}

// looksLikeQuestion separates a question typed at the password prompt from a
// passphrase: it must contain whitespace and read as a question.
func looksLikeQuestion(text string) bool {
	if !strings.ContainsFunc(text, unicode.IsSpace) {
		return false
	}
	return strings.HasSuffix(text, "?") || strings.HasPrefix(text, "¿")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
