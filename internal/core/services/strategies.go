package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// Chaque stratégie suit le même cycle : SELECT_POOL → SCORE → SORT → CAP(100).
// Les pools arrivent déjà triés et bornés par le repository, mais les
// invariants (visibilité, cap) sont re-vérifiés ici : le core ne fait pas
// confiance aveugle au SQL.

// dedupSimilarityThreshold : deux corps similaires à 90%+ sont considérés
// comme des doublons dans le feed discover.
const dedupSimilarityThreshold = 90.0

// discoverWindow / trendingWindow / algorithmicWindow : fenêtres de fraîcheur
// des pools.
const (
	algorithmicWindow = 7 * 24 * time.Hour
	trendingWindow    = 24 * time.Hour
	discoverWindow    = 3 * 24 * time.Hour
)

// rankChronological : soi + amis + public, tri par date de publication
// (puis création) descendante. Aucun scoring.
func (s *FeedService) rankChronological(ctx context.Context, userID string, period domain.Period, now time.Time) ([]domain.RankedItem, error) {
	friends, err := s.graph.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("chronological: load friends: %w", err)
	}

	items, err := s.content.TimelinePool(ctx, userID, friends, periodStart(period, now), PoolCap)
	if err != nil {
		return nil, fmt.Errorf("chronological: load pool: %w", err)
	}

	ranked := wrapVisible(items, domain.FeedChronological, nil)
	sortByRecency(ranked)
	return capPool(ranked), nil
}

// rankAlgorithmic : même pool que le chronologique mais borné à 7 jours,
// scoré par EngagementScore, tri score desc puis publication desc.
func (s *FeedService) rankAlgorithmic(ctx context.Context, userID string, now time.Time) ([]domain.RankedItem, error) {
	friends, err := s.graph.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("algorithmic: load friends: %w", err)
	}
	friendSet := toSet(friends)

	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("algorithmic: load profile: %w", err)
	}
	preferred := make(map[domain.ContentType]struct{})
	if profile != nil {
		for _, t := range profile.PreferredTypes {
			preferred[t] = struct{}{}
		}
	}

	items, err := s.content.TimelinePool(ctx, userID, friends, now.Add(-algorithmicWindow), PoolCap)
	if err != nil {
		return nil, fmt.Errorf("algorithmic: load pool: %w", err)
	}

	ranked := wrapVisible(items, domain.FeedAlgorithmic, func(item domain.ContentItem) float64 {
		_, isFriend := friendSet[item.AuthorID]
		_, isPreferred := preferred[item.Type]
		return EngagementScore(item, isFriend, isPreferred, now)
	})
	sortByScore(ranked)
	return capPool(ranked), nil
}

// rankFollowing : contenus des suivis uniquement. Personne de suivi =
// résultat vide SANS requête de pool (court-circuit).
func (s *FeedService) rankFollowing(ctx context.Context, userID string) ([]domain.RankedItem, error) {
	following, err := s.graph.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("following: load follows: %w", err)
	}
	if len(following) == 0 {
		return []domain.RankedItem{}, nil
	}

	items, err := s.content.AuthoredPool(ctx, following, PoolCap)
	if err != nil {
		return nil, fmt.Errorf("following: load pool: %w", err)
	}

	ranked := wrapVisible(items, domain.FeedFollowing, nil)
	sortByRecency(ranked)
	return capPool(ranked), nil
}

// rankTrending : publics des dernières 24h, score trending, et EXCLUSION
// (pas juste déclassement) de tout ce qui est sous le seuil.
func (s *FeedService) rankTrending(ctx context.Context, now time.Time) ([]domain.RankedItem, error) {
	items, err := s.content.PublicPool(ctx, now.Add(-trendingWindow), PoolCap)
	if err != nil {
		return nil, fmt.Errorf("trending: load pool: %w", err)
	}

	ranked := make([]domain.RankedItem, 0, len(items))
	for _, item := range items {
		if !item.Visible() {
			continue
		}
		score := TrendingScore(item)
		if score <= TrendingThreshold {
			continue
		}
		ranked = append(ranked, domain.RankedItem{Item: item, Score: score, Strategy: domain.FeedTrending})
	}
	sortByScore(ranked)
	return capPool(ranked), nil
}

// rankDiscover : publics récents hors soi et amis, retenus par intérêt ou
// popularité, puis SHUFFLE ALÉATOIRE et troncature à 100. La randomisation
// est voulue (anti-bulle de filtre), ne pas la remplacer par un top-N.
// La page shufflée est ensuite cachée : le tirage tient toute la fenêtre TTL.
func (s *FeedService) rankDiscover(ctx context.Context, userID string, now time.Time) ([]domain.RankedItem, error) {
	friends, err := s.graph.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("discover: load friends: %w", err)
	}
	excluded := append([]string{userID}, friends...)

	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("discover: load profile: %w", err)
	}
	var interests []string
	if profile != nil {
		interests = profile.Interests
	}

	items, err := s.content.DiscoverPool(ctx, excluded, interests, 10, now.Add(-discoverWindow), DiscoverSampleCap)
	if err != nil {
		return nil, fmt.Errorf("discover: load pool: %w", err)
	}

	ranked := wrapVisible(items, domain.FeedDiscover, nil)

	rng := s.newRand()
	rng.Shuffle(len(ranked), func(i, j int) {
		ranked[i], ranked[j] = ranked[j], ranked[i]
	})
	ranked = capPool(ranked)

	return dedupeSimilar(ranked), nil
}

// dedupeSimilar écarte les quasi-doublons de corps (≥90% de similarité)
// en gardant le premier tiré. Le pool est déjà plafonné à 100 : le coût
// quadratique est borné.
func dedupeSimilar(ranked []domain.RankedItem) []domain.RankedItem {
	out := make([]domain.RankedItem, 0, len(ranked))
	for _, candidate := range ranked {
		dup := false
		if candidate.Item.Body != "" {
			for _, kept := range out {
				if kept.Item.Body == "" {
					continue
				}
				if SimilarityPercentage(candidate.Item.Body, kept.Item.Body) >= dedupSimilarityThreshold {
					dup = true
					break
				}
			}
		}
		if !dup {
			out = append(out, candidate)
		}
	}
	return out
}

// --- helpers communs aux stratégies ---

// wrapVisible emballe les items visibles en RankedItem, avec scoring optionnel.
func wrapVisible(items []domain.ContentItem, strategy domain.FeedType, score func(domain.ContentItem) float64) []domain.RankedItem {
	ranked := make([]domain.RankedItem, 0, len(items))
	for _, item := range items {
		if !item.Visible() {
			continue
		}
		ri := domain.RankedItem{Item: item, Strategy: strategy}
		if score != nil {
			ri.Score = score(item)
		}
		ranked = append(ranked, ri)
	}
	return ranked
}

func sortByRecency(ranked []domain.RankedItem) {
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].Item.EffectivePublishedAt(), ranked[j].Item.EffectivePublishedAt()
		if !pi.Equal(pj) {
			return pi.After(pj)
		}
		return ranked[i].Item.CreatedAt.After(ranked[j].Item.CreatedAt)
	})
}

func sortByScore(ranked []domain.RankedItem) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Item.EffectivePublishedAt().After(ranked[j].Item.EffectivePublishedAt())
	})
}

func capPool(ranked []domain.RankedItem) []domain.RankedItem {
	if len(ranked) > PoolCap {
		return ranked[:PoolCap]
	}
	return ranked
}

// periodStart traduit la période du feed chronologique en borne basse.
// "today" = minuit UTC ; les autres sont des fenêtres glissantes.
func periodStart(period domain.Period, now time.Time) time.Time {
	switch period {
	case domain.PeriodToday:
		return now.UTC().Truncate(24 * time.Hour)
	case domain.PeriodWeek:
		return now.Add(-7 * 24 * time.Hour)
	case domain.PeriodMonth:
		return now.Add(-30 * 24 * time.Hour)
	case domain.PeriodYear:
		return now.Add(-365 * 24 * time.Hour)
	default:
		return time.Time{}
	}
}
