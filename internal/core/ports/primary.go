package ports

import (
	"context"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// --- DRIVING (Ce que le service expose) ---

type FeedService interface {
	// GenerateFeed est appelé par la couche d'exposition pour afficher un feed.
	GenerateFeed(ctx context.Context, req domain.FeedRequest) (*domain.FeedPage, error)

	// InvalidateForUser purge toutes les pages en cache d'un utilisateur.
	// Déclenché par les events d'écriture (nouvelle amitié, nouveau follow).
	InvalidateForUser(ctx context.Context, userID string) error

	// InvalidateForAudience purge l'auteur ET ses amis acceptés.
	// Déclenché par "post.created" : leurs feeds chronologique/algorithmique
	// sont périmés dès que l'auteur publie.
	InvalidateForAudience(ctx context.Context, authorID string) error
}

type SuggestionService interface {
	// GetSuggestions renvoie des candidats classés, déjà enrichis
	// (nom, avatar, raison lisible).
	GetSuggestions(ctx context.Context, req domain.SuggestionRequest) ([]domain.SuggestionCandidate, error)
}
