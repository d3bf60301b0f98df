package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jupiterclapton/maillage/internal/core/domain"
	"github.com/jupiterclapton/maillage/internal/core/ports"
)

// FeedService orchestre : cache → stratégie → filtres → page.
// Synchrone, idempotent, sans état partagé hors du cache : deux requêtes
// concurrentes pour le même user peuvent recalculer en double, c'est accepté
// (dernier écrivain gagnant dans Redis, les deux snapshots sont valides).
type FeedService struct {
	content  ports.ContentRepository
	graph    ports.GraphRepository
	profiles ports.ProfileRepository
	cache    ports.FeedCache
	clock    ports.Clock
	ttls     map[domain.FeedType]time.Duration

	// newRand fournit la source du shuffle discover. Injectable pour que
	// les tests fixent la graine ; en prod, graine = horloge.
	newRand func() *rand.Rand
}

// NewFeedService câble le core. ttls à nil = politique par défaut.
func NewFeedService(content ports.ContentRepository, graph ports.GraphRepository,
	profiles ports.ProfileRepository, cache ports.FeedCache, clock ports.Clock,
	ttls map[domain.FeedType]time.Duration) *FeedService {

	if ttls == nil {
		ttls = DefaultTTLs()
	}
	s := &FeedService{
		content:  content,
		graph:    graph,
		profiles: profiles,
		cache:    cache,
		clock:    clock,
		ttls:     ttls,
	}
	s.newRand = func() *rand.Rand {
		return rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	}
	return s
}

func (s *FeedService) GenerateFeed(ctx context.Context, req domain.FeedRequest) (*domain.FeedPage, error) {
	tracer := otel.Tracer("maillage")
	ctx, span := tracer.Start(ctx, "generate_feed")
	defer span.End()

	feedType, err := domain.ParseFeedType(string(req.Type))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFeedType, req.Type)
	}
	req.Type = feedType
	span.SetAttributes(attribute.String("feed.type", string(feedType)))

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	key := CacheKey(req.UserID, req.Type, req.Period, req.Filters)

	// Lecture cache en FAIL-OPEN : une panne Redis dégrade en recalcul,
	// jamais en erreur utilisateur. On log pour garder la panne visible.
	ranked, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("⚠️ Feed cache read failed, recomputing", "key", key, "error", err)
		hit = false
	}

	if !hit {
		ranked, err = s.rank(ctx, req)
		if err != nil {
			return nil, err
		}
		ranked = ApplyFilters(ranked, req.Filters)

		// C'est la séquence classée+filtrée qui est cachée : le shuffle
		// discover est donc figé pour toute la fenêtre TTL.
		if err := s.cache.Set(ctx, key, ranked, s.ttl(req.Type)); err != nil {
			slog.Warn("⚠️ Feed cache write failed", "key", key, "error", err)
		}
	}

	items, pagination := PageSlice(ranked, req.Cursor, perPage)
	return &domain.FeedPage{Items: items, Pagination: pagination}, nil
}

// InvalidateForUser purge toutes les pages en cache d'un utilisateur
// (toutes stratégies, périodes et combinaisons de filtres confondues).
func (s *FeedService) InvalidateForUser(ctx context.Context, userID string) error {
	if err := s.cache.DeletePattern(ctx, InvalidationPattern(userID)); err != nil {
		return fmt.Errorf("invalidate feed cache for %s: %w", userID, err)
	}
	slog.Debug("🧹 Feed cache invalidated", "user_id", userID)
	return nil
}

// InvalidateForAudience : l'auteur publie, ses amis acceptés doivent revoir
// leurs feeds. Les échecs partiels sont agrégés, pas avalés.
func (s *FeedService) InvalidateForAudience(ctx context.Context, authorID string) error {
	friends, err := s.graph.FriendIDs(ctx, authorID)
	if err != nil {
		return fmt.Errorf("load audience of %s: %w", authorID, err)
	}

	errs := s.cache.DeletePattern(ctx, InvalidationPattern(authorID))
	for _, friendID := range friends {
		errs = errors.Join(errs, s.cache.DeletePattern(ctx, InvalidationPattern(friendID)))
	}
	if errs != nil {
		return fmt.Errorf("invalidate audience of %s: %w", authorID, errs)
	}
	slog.Debug("🧹 Audience feed cache invalidated", "author_id", authorID, "friends", len(friends))
	return nil
}

func (s *FeedService) ttl(feedType domain.FeedType) time.Duration {
	if ttl, ok := s.ttls[feedType]; ok {
		return ttl
	}
	return DefaultTTLs()[feedType]
}

// rank dispatche vers la stratégie. Le switch est exhaustif sur l'enum
// fermé FeedType ; le défaut ne peut être atteint qu'avec un tag forgé.
func (s *FeedService) rank(ctx context.Context, req domain.FeedRequest) ([]domain.RankedItem, error) {
	now := s.clock.Now()
	switch req.Type {
	case domain.FeedChronological:
		return s.rankChronological(ctx, req.UserID, req.Period, now)
	case domain.FeedAlgorithmic:
		return s.rankAlgorithmic(ctx, req.UserID, now)
	case domain.FeedFollowing:
		return s.rankFollowing(ctx, req.UserID)
	case domain.FeedTrending:
		return s.rankTrending(ctx, now)
	case domain.FeedDiscover:
		return s.rankDiscover(ctx, req.UserID, now)
	case domain.FeedBookmarks:
		// Stub explicite : aucun store de bookmarks n'existe dans ce core.
		return []domain.RankedItem{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFeedType, req.Type)
	}
}
