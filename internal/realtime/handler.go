// Package realtime serves the WebSocket protocol: identify, templates,
// weather, design requests and purchases.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bonosa/MarsLife/internal/catalog"
	"github.com/bonosa/MarsLife/internal/design"
	"github.com/bonosa/MarsLife/internal/i18n"
	"github.com/bonosa/MarsLife/internal/imagegen"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/metrics"
	"github.com/bonosa/MarsLife/internal/payment"
	"github.com/bonosa/MarsLife/internal/weather"
	"go.uber.org/zap"
)

// Sender writes one outbound event. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, event string, data any) error
}

type WeatherSource interface {
	Fetch(ctx context.Context) weather.Report
}

type PaymentConfirmer interface {
	Confirm(ctx context.Context, intentID, userID string) (*payment.Confirmation, error)
}

type Deps struct {
	Ledger    *ledger.Service
	Designer  *design.Designer
	Generator imagegen.Generator
	Payments  PaymentConfirmer
	Weather   WeatherSource
	I18n      *i18n.Manager
	Logger    *zap.Logger
}

type Handler struct {
	ledger    *ledger.Service
	designer  *design.Designer
	generator imagegen.Generator
	payments  PaymentConfirmer
	weather   WeatherSource
	i18n      *i18n.Manager
	logger    *zap.Logger
}

func NewHandler(deps Deps) *Handler {
	designer := deps.Designer
	if designer == nil {
		designer = design.New(nil)
	}
	return &Handler{
		ledger:    deps.Ledger,
		designer:  designer,
		generator: deps.Generator,
		payments:  deps.Payments,
		weather:   deps.Weather,
		i18n:      deps.I18n,
		logger:    deps.Logger.Named("realtime"),
	}
}

// legacySender renames outbound events for clients that speak the old
// event names.
type legacySender struct {
	Sender
}

func (l legacySender) Send(ctx context.Context, event string, data any) error {
	if name, ok := legacyOutbound[event]; ok {
		event = name
	}
	return l.Sender.Send(ctx, event, data)
}

// Handle processes one inbound frame. It recovers from panics so one bad
// message cannot take down the connection.
func (h *Handler) Handle(ctx context.Context, sess *Session, out Sender, env Envelope) {
	event, legacy := canonical(env.Event)
	if legacy {
		sess.markLegacy()
	}
	if sess.Legacy() {
		out = legacySender{out}
	}
	logger := h.logger.With(zap.String("session_id", sess.ID), zap.String("event", event))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling event", zap.Any("panic", r), zap.Stack("stack"))
			metrics.SocketEventsTotal.WithLabelValues(event, "panic").Inc()
			h.sendError(ctx, out, sess, "error_internal")
		}
	}()

	var ok bool
	switch event {
	case EventIdentify:
		ok = h.identify(ctx, sess, out, env)
	case EventGetTemplates:
		ok = h.send(ctx, out, EventTemplates, catalog.Templates())
	case EventGetWeather:
		ok = h.send(ctx, out, EventWeather, h.weather.Fetch(ctx))
	case EventDesignRequest:
		ok = h.design(ctx, sess, out, env, logger)
	case EventPurchase:
		ok = h.purchase(ctx, sess, out, env, logger)
	default:
		logger.Warn("Unknown event")
		h.sendError(ctx, out, sess, "error_unknown_event", "Event", env.Event)
		event = "unknown"
	}

	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	metrics.SocketEventsTotal.WithLabelValues(event, outcome).Inc()
}

func (h *Handler) send(ctx context.Context, out Sender, event string, data any) bool {
	if err := out.Send(ctx, event, data); err != nil {
		h.logger.Debug("Failed to send event", zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) sendError(ctx context.Context, out Sender, sess *Session, key string, args ...any) {
	msg := h.i18n.T(sess.Language(), key, args...)
	h.send(ctx, out, EventError, ErrorPayload{Message: msg})
}

func (h *Handler) identify(ctx context.Context, sess *Session, out Sender, env Envelope) bool {
	var p IdentifyPayload
	if err := decode(env.Data, &p); err != nil {
		h.sendError(ctx, out, sess, "error_invalid_payload", "Event", env.Event)
		return false
	}
	if p.UserID == "" {
		h.sendError(ctx, out, sess, "error_empty_user_id")
		return false
	}

	if prev, ok := sess.UserID(); ok && prev != p.UserID {
		h.logger.Info("Session rebound", zap.String("session_id", sess.ID), zap.String("from", prev), zap.String("to", p.UserID))
	}
	sess.Bind(p.UserID, p.Language)

	balance, err := h.ledger.Balance(ctx, p.UserID)
	if err != nil {
		h.logger.Error("Failed to read balance", zap.String("user_id", p.UserID), zap.Error(err))
		h.sendError(ctx, out, sess, "error_internal")
		return false
	}
	h.logger.Info("User identified", zap.String("session_id", sess.ID), zap.String("user_id", p.UserID), zap.Int64("credits", balance))
	return h.send(ctx, out, EventBalanceUpdate, BalancePayload{Credits: balance})
}

func (h *Handler) design(ctx context.Context, sess *Session, out Sender, env Envelope, logger *zap.Logger) bool {
	g := newGeneration(logger)
	defer g.finish()

	g.to(Validating)
	var p DesignPayload
	if err := decode(env.Data, &p); err != nil {
		g.to(Rejected)
		h.sendError(ctx, out, sess, "error_invalid_payload", "Event", env.Event)
		return false
	}
	userID, ok := sess.UserID()
	if !ok {
		g.to(Rejected)
		h.sendError(ctx, out, sess, "error_not_identified")
		return false
	}
	logger = logger.With(zap.String("user_id", userID))
	g.logger = logger

	unlock := h.ledger.Lock(userID)
	defer unlock()

	balance, err := h.ledger.CheckAffordable(ctx, userID)
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		g.to(Rejected)
		h.sendError(ctx, out, sess, "error_insufficient_credits", "Cost", h.ledger.Cost(), "Balance", balance)
		return false
	case err != nil:
		g.to(Failed)
		logger.Error("Failed to check balance", zap.Error(err))
		h.sendError(ctx, out, sess, "error_internal")
		return false
	}

	g.to(Generating)
	req := p.Request()
	dsg := h.designer.Compose(req)
	imageURL, err := h.generate(ctx, h.designer.Prompt(req))
	if err != nil {
		g.to(Failed)
		logger.Warn("Design generation failed", zap.String("design_id", dsg.ID), zap.Error(err))
		h.sendError(ctx, out, sess, "error_generation_failed")
		return false
	}
	dsg.ImageURL = imageURL

	g.to(Settling)
	newBalance, err := h.ledger.Charge(ctx, userID)
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		g.to(Rejected)
		h.sendError(ctx, out, sess, "error_insufficient_credits", "Cost", h.ledger.Cost(), "Balance", balance)
		return false
	case err != nil:
		g.to(Failed)
		logger.Error("Failed to charge generation", zap.Error(err))
		h.sendError(ctx, out, sess, "error_internal")
		return false
	}
	metrics.CreditsSpent.Add(float64(h.ledger.Cost()))

	logger.Info("Design delivered", zap.String("design_id", dsg.ID), zap.Int64("credits", newBalance))
	h.send(ctx, out, EventBalanceUpdate, BalancePayload{Credits: newBalance})
	return h.send(ctx, out, EventDesignResult, h.designer.Result(dsg))
}

func (h *Handler) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url, err := h.generator.Generate(ctx, prompt)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if url == "" {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, imagegen.ErrNoImage)
	}
	return url, nil
}

func (h *Handler) purchase(ctx context.Context, sess *Session, out Sender, env Envelope, logger *zap.Logger) bool {
	userID, ok := sess.UserID()
	if !ok {
		h.sendError(ctx, out, sess, "error_not_identified")
		return false
	}
	var p PurchasePayload
	if err := decode(env.Data, &p); err != nil {
		h.sendError(ctx, out, sess, "error_invalid_payload", "Event", env.Event)
		return false
	}

	res, err := h.payments.Confirm(ctx, p.PaymentIntentID, userID)
	switch {
	case errors.Is(err, payment.ErrPaymentIncomplete):
		h.sendError(ctx, out, sess, "error_payment_incomplete")
		return false
	case err != nil:
		logger.Error("Purchase failed", zap.String("user_id", userID), zap.String("intent_id", p.PaymentIntentID), zap.Error(err))
		h.sendError(ctx, out, sess, "error_purchase_failed")
		return false
	}

	callerBalance := res.NewBalance
	if res.UserID != "" && res.UserID != userID {
		if callerBalance, err = h.ledger.Balance(ctx, userID); err != nil {
			logger.Error("Failed to read balance", zap.String("user_id", userID), zap.Error(err))
			h.sendError(ctx, out, sess, "error_internal")
			return false
		}
	}
	h.send(ctx, out, EventBalanceUpdate, BalancePayload{Credits: callerBalance})
	return h.send(ctx, out, EventPurchaseSuccess, PurchaseSuccessPayload{CreditsAdded: res.CreditsAdded, NewBalance: callerBalance})
}
