package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// --- DRIVEN (Ce dont le core a besoin) ---

// ContentRepository expose les pools de contenu par stratégie.
// Contrat commun : les items masqués/signalés sont déjà exclus, le tri
// descendant par date de publication est fait en SQL, et `limit` borne
// la taille du pool (load-shedding, PAS une taille de page).
type ContentRepository interface {
	// TimelinePool : contenus de l'utilisateur + de ses amis + publics.
	// since à zéro = pas de borne temporelle.
	TimelinePool(ctx context.Context, userID string, friendIDs []string, since time.Time, limit int) ([]domain.ContentItem, error)

	// AuthoredPool : contenus publiés par les auteurs donnés (feed following).
	AuthoredPool(ctx context.Context, authorIDs []string, limit int) ([]domain.ContentItem, error)

	// PublicPool : contenus publics depuis `since` (feed trending).
	PublicPool(ctx context.Context, since time.Time, limit int) ([]domain.ContentItem, error)

	// DiscoverPool : contenus publics récents hors auteurs exclus, retenus
	// si un intérêt matche (corps ou hashtag) OU si likes >= minLikes.
	DiscoverPool(ctx context.Context, excludedAuthorIDs []string, interests []string, minLikes int, since time.Time, limit int) ([]domain.ContentItem, error)
}

// GraphRepository répond aux questions d'adjacence sans faire fuiter Neo4j
// vers le haut. Contrat : aucune ligne = slice/map vide, JAMAIS une erreur ;
// un id inconnu = vide aussi. Une vraie panne du store, elle, remonte.
type GraphRepository interface {
	// FriendIDs : amitiés acceptées uniquement, les deux sens confondus.
	FriendIDs(ctx context.Context, userID string) ([]string, error)

	// FollowingIDs : follows actifs (non mutés) uniquement.
	FollowingIDs(ctx context.Context, userID string) ([]string, error)

	// RelationStatuses : tous les voisins FRIEND quel que soit le statut,
	// pour construire l'ensemble d'exclusion des suggestions en une requête.
	RelationStatuses(ctx context.Context, userID string) (map[string]domain.FriendStatus, error)
}

// ProfileRepository fournit les profils (filtres, sous-scores, enrichissement).
type ProfileRepository interface {
	// Profile renvoie (nil, nil) pour un id inconnu.
	Profile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// Profiles : fetch batch, les ids inconnus sont simplement absents de la map.
	Profiles(ctx context.Context, userIDs []string) (map[string]domain.UserProfile, error)
}

// FeedCache stocke des séquences classées sérialisées.
// La frontière de sérialisation (RankedItem ⇄ bytes) vit DANS l'adaptateur :
// personne d'autre ne sérialise ces objets.
type FeedCache interface {
	// Get : (nil, false, nil) sur un miss. Une erreur est remontée telle
	// quelle, c'est le service qui décide du fail-open.
	Get(ctx context.Context, key string) ([]domain.RankedItem, bool, error)

	Set(ctx context.Context, key string, items []domain.RankedItem, ttl time.Duration) error

	// DeletePattern supprime toutes les clés matchant un motif glob Redis.
	DeletePattern(ctx context.Context, pattern string) error
}

// Clock est injectée partout où un score dépend du temps, pour que les
// tests puissent geler l'horloge.
type Clock interface {
	Now() time.Time
}
