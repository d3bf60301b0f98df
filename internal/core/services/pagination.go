package services

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 50

	// PoolCap borne le pool brut de chaque stratégie AVANT pagination.
	// C'est du load-shedding, pas une taille de page.
	PoolCap = 100

	// DiscoverSampleCap : taille de l'échantillon discover avant shuffle.
	DiscoverSampleCap = 1000
)

// DefaultTTLs : durées de vie en cache par type de feed. Constantes de
// politique, surchargées par la config (FEED_TTL_*) mais jamais inventées
// au call-site.
func DefaultTTLs() map[domain.FeedType]time.Duration {
	return map[domain.FeedType]time.Duration{
		domain.FeedChronological: 300 * time.Second,
		domain.FeedAlgorithmic:   600 * time.Second,
		domain.FeedFollowing:     300 * time.Second,
		domain.FeedTrending:      900 * time.Second,
		domain.FeedDiscover:      1800 * time.Second,
		domain.FeedBookmarks:     180 * time.Second,
	}
}

// EncodeCursor sérialise un curseur en token opaque (base64url de JSON).
func EncodeCursor(c domain.Cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		// Impossible sur une struct plate, mais on ne panique jamais ici.
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor est VOLONTAIREMENT indulgent : un token vide, corrompu ou
// forgé renvoie (zero, false) et le caller repart de l'index 0.
// On ne fait jamais échouer une requête pour un curseur pourri.
func DecodeCursor(token string) (domain.Cursor, bool) {
	if token == "" {
		return domain.Cursor{}, false
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return domain.Cursor{}, false
	}
	var c domain.Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Cursor{}, false
	}
	if c.ID == "" {
		return domain.Cursor{}, false
	}
	return c, true
}

// PageSlice découpe une page dans une séquence déjà classée ET filtrée.
// On repère l'item pointé par le curseur et on démarre juste après lui.
// Item introuvable (évincé, filtré entre-temps) = retour page 1 : on
// privilégie la disponibilité sur la continuation stricte.
func PageSlice(items []domain.RankedItem, cursorToken string, perPage int) ([]domain.RankedItem, domain.Pagination) {
	start := 0
	if c, ok := DecodeCursor(cursorToken); ok {
		for i := range items {
			if items[i].Item.ID == c.ID {
				start = i + 1
				break
			}
		}
	}

	if start > len(items) {
		start = len(items)
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]

	hasMore := len(items) > start+perPage

	var next *string
	if hasMore && len(page) > 0 {
		last := page[len(page)-1]
		token := EncodeCursor(domain.Cursor{
			ID:        last.Item.ID,
			Timestamp: last.Item.EffectivePublishedAt(),
			Score:     last.Score,
		})
		next = &token
	}

	return page, domain.Pagination{
		HasMore:        hasMore,
		NextCursor:     next,
		Count:          len(page),
		TotalAvailable: len(items),
	}
}

// CacheKey dérive la clé Redis d'une requête de feed. Le préfixe
// "feed:{userID}:" reste en clair : c'est lui que l'invalidation par motif
// cible. Le reste identifie (type, période, filtres) de façon déterministe.
func CacheKey(userID string, feedType domain.FeedType, period domain.Period, filters *domain.FeedFilters) string {
	p := string(period)
	if p == "" {
		p = "all"
	}
	return fmt.Sprintf("feed:%s:%s:%s:%s", userID, feedType, p, FilterFingerprint(filters))
}

// InvalidationPattern : motif glob couvrant toutes les pages d'un utilisateur.
func InvalidationPattern(userID string) string {
	return fmt.Sprintf("feed:%s:*", userID)
}

// FilterFingerprint hache le jeu de filtres pour que deux combinaisons
// distinctes ne partagent jamais une clé. Les slices sont triées avant
// hachage : l'ordre d'écriture des filtres ne doit pas changer la clé.
func FilterFingerprint(f *domain.FeedFilters) string {
	if f == nil {
		return "none"
	}
	canon := *f
	canon.ContentTypes = append([]domain.ContentType(nil), f.ContentTypes...)
	sort.Slice(canon.ContentTypes, func(i, j int) bool { return canon.ContentTypes[i] < canon.ContentTypes[j] })
	canon.ExcludedAuthors = append([]string(nil), f.ExcludedAuthors...)
	sort.Strings(canon.ExcludedAuthors)
	canon.Hashtags = append([]string(nil), f.Hashtags...)
	sort.Strings(canon.Hashtags)

	data, err := json.Marshal(canon)
	if err != nil {
		return "none"
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}
