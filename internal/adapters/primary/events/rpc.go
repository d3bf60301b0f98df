package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/maillage/internal/core/domain"
	"github.com/jupiterclapton/maillage/internal/core/ports"
)

// QueryHandler expose les deux ports de lecture en request-reply NATS.
// C'est la surface synchrone du service : l'API gateway publie sur
// feed.request / suggestions.request et attend la réponse JSON.
type QueryHandler struct {
	feed        ports.FeedService
	suggestions ports.SuggestionService
}

func NewQueryHandler(feed ports.FeedService, suggestions ports.SuggestionService) *QueryHandler {
	return &QueryHandler{feed: feed, suggestions: suggestions}
}

// Contrats de requête côté gateway. Les tags string sont validés par les
// Parse* du domaine, jamais switchés directement.
type feedRequestMsg struct {
	UserID  string              `json:"user_id"`
	Type    string              `json:"type,omitempty"`
	PerPage int                 `json:"per_page,omitempty"`
	Cursor  string              `json:"cursor,omitempty"`
	Period  string              `json:"period,omitempty"`
	Filters *domain.FeedFilters `json:"filters,omitempty"`
}

type suggestionsRequestMsg struct {
	UserID           string  `json:"user_id"`
	Count            int     `json:"count,omitempty"`
	Algorithm        string  `json:"algorithm,omitempty"`
	IncludeScores    bool    `json:"include_scores,omitempty"`
	MinScore         float64 `json:"min_score,omitempty"`
	MinMutualFriends int     `json:"min_mutual_friends,omitempty"`
}

type errorReply struct {
	Error string `json:"error"`
}

func (h *QueryHandler) HandleFeedRequest(msg *nats.Msg) {
	ctx, span := h.startSpan(msg, "feed_request")
	defer span.End()

	var req feedRequestMsg
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		span.RecordError(err)
		h.replyError(msg, "invalid feed request")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	page, err := h.feed.GenerateFeed(ctx, domain.FeedRequest{
		UserID:  req.UserID,
		Type:    domain.FeedType(req.Type),
		PerPage: req.PerPage,
		Cursor:  req.Cursor,
		Period:  domain.Period(req.Period),
		Filters: req.Filters,
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("❌ Feed request failed", "user_id", req.UserID, "error", err)
		h.replyError(msg, err.Error())
		return
	}
	h.reply(msg, page)
}

func (h *QueryHandler) HandleSuggestionsRequest(msg *nats.Msg) {
	ctx, span := h.startSpan(msg, "suggestions_request")
	defer span.End()

	var req suggestionsRequestMsg
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		span.RecordError(err)
		h.replyError(msg, "invalid suggestions request")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	candidates, err := h.suggestions.GetSuggestions(ctx, domain.SuggestionRequest{
		UserID:           req.UserID,
		Count:            req.Count,
		Algorithm:        domain.SuggestionAlgorithm(req.Algorithm),
		IncludeScores:    req.IncludeScores,
		MinScore:         req.MinScore,
		MinMutualFriends: req.MinMutualFriends,
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("❌ Suggestions request failed", "user_id", req.UserID, "error", err)
		h.replyError(msg, err.Error())
		return
	}
	h.reply(msg, candidates)
}

func (h *QueryHandler) startSpan(msg *nats.Msg, name string) (context.Context, trace.Span) {
	ctx := context.Background()
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Header))
	tracer := otel.Tracer("maillage")
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

func (h *QueryHandler) reply(msg *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("❌ Failed to marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Error("❌ Failed to respond", "subject", msg.Subject, "error", err)
	}
}

func (h *QueryHandler) replyError(msg *nats.Msg, reason string) {
	data, _ := json.Marshal(errorReply{Error: reason})
	if err := msg.Respond(data); err != nil {
		slog.Error("❌ Failed to respond", "subject", msg.Subject, "error", err)
	}
}
