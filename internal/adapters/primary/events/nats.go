package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/maillage/internal/core/ports"
)

// EventHandler consomme les events d'écriture du reste de la plateforme
// et purge le cache de feed des utilisateurs concernés. C'est TOUTE la
// stratégie d'invalidation : pas de write-through, un miss recalcule.
type EventHandler struct {
	feed ports.FeedService
}

func NewEventHandler(feed ports.FeedService) *EventHandler {
	return &EventHandler{feed: feed}
}

// Contrats implicites avec post-service et graph-service.
type postCreatedEvent struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type relationEvent struct {
	ActorID  string `json:"actor_id"`
	TargetID string `json:"target_id"`
}

// HandlePostCreated : un post publié périme les feeds de l'auteur et de
// ses amis. L'invalidation part en background, le consumer NATS ne bloque pas.
func (h *EventHandler) HandlePostCreated(msg *nats.Msg) {
	ctx, span := h.startSpan(msg, "invalidate_post_created")
	defer span.End()

	var event postCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid post.created event", "error", err)
		return
	}

	slog.Info("📨 Received post.created", "post_id", event.ID, "author_id", event.AuthorID)
	h.async(ctx, func(ctx context.Context) error {
		return h.feed.InvalidateForAudience(ctx, event.AuthorID)
	}, "post.created", event.AuthorID)
}

// HandleFriendAccepted : une amitié acceptée change les deux timelines.
func (h *EventHandler) HandleFriendAccepted(msg *nats.Msg) {
	ctx, span := h.startSpan(msg, "invalidate_friend_accepted")
	defer span.End()

	var event relationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid friend.accepted event", "error", err)
		return
	}

	h.async(ctx, func(ctx context.Context) error {
		if err := h.feed.InvalidateForUser(ctx, event.ActorID); err != nil {
			return err
		}
		return h.feed.InvalidateForUser(ctx, event.TargetID)
	}, "friend.accepted", event.ActorID)
}

// HandleFollowCreated : seul le feed du suiveur change.
func (h *EventHandler) HandleFollowCreated(msg *nats.Msg) {
	ctx, span := h.startSpan(msg, "invalidate_follow_created")
	defer span.End()

	var event relationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		span.RecordError(err)
		slog.Error("❌ Invalid follow.created event", "error", err)
		return
	}

	h.async(ctx, func(ctx context.Context) error {
		return h.feed.InvalidateForUser(ctx, event.ActorID)
	}, "follow.created", event.ActorID)
}

// startSpan extrait le contexte de trace des headers NATS pour relier
// l'invalidation au service qui a publié l'event.
func (h *EventHandler) startSpan(msg *nats.Msg, name string) (context.Context, trace.Span) {
	ctx := context.Background()
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	tracer := otel.Tracer("maillage")
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindConsumer))
}

func (h *EventHandler) async(ctx context.Context, fn func(context.Context) error, subject, userID string) {
	// Chaque job d'invalidation porte un id : sans lui, impossible de
	// corréler le log d'échec d'un job background avec l'event d'origine.
	jobID := uuid.NewString()
	go func() {
		childCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := fn(childCtx); err != nil {
			slog.Error("❌ Cache invalidation failed", "job_id", jobID, "subject", subject, "user_id", userID, "error", err)
			return
		}
		slog.Debug("✅ Cache invalidated", "job_id", jobID, "subject", subject, "user_id", userID)
	}()
}
