package domain

import (
	"errors"
	"time"
)

// FeedType identifie une stratégie de classement. L'ensemble est FERMÉ :
// le dispatch se fait par switch exhaustif (défaut = ErrUnknownFeedType),
// ajouter une stratégie sans brancher le switch casse à la compilation des tests.
type FeedType string

const (
	FeedChronological FeedType = "chronological"
	FeedAlgorithmic   FeedType = "algorithmic"
	FeedFollowing     FeedType = "following"
	FeedTrending      FeedType = "trending"
	FeedDiscover      FeedType = "discover"
	FeedBookmarks     FeedType = "bookmarks"
)

var ErrUnknownFeedType = errors.New("unknown feed type")

// ParseFeedType valide un tag venant de l'extérieur (API, event).
// Chaîne vide = défaut chronologique.
func ParseFeedType(s string) (FeedType, error) {
	switch FeedType(s) {
	case FeedChronological, FeedAlgorithmic, FeedFollowing, FeedTrending, FeedDiscover, FeedBookmarks:
		return FeedType(s), nil
	case "":
		return FeedChronological, nil
	default:
		return "", ErrUnknownFeedType
	}
}

// Period restreint la fenêtre temporelle du feed chronologique.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// FeedFilters : prédicats appliqués APRÈS le classement, AVANT la pagination.
// Ce sont des suppressions pures, jamais un re-scoring.
type FeedFilters struct {
	ContentTypes    []ContentType `json:"content_types,omitempty"`
	HasMedia        *bool         `json:"has_media,omitempty"`
	DateFrom        *time.Time    `json:"date_from,omitempty"`
	DateTo          *time.Time    `json:"date_to,omitempty"`
	MinEngagement   int           `json:"min_engagement,omitempty"`
	ExcludedAuthors []string      `json:"excluded_authors,omitempty"`
	Hashtags        []string      `json:"hashtags,omitempty"`
}

// FeedRequest encapsule les critères d'une génération de feed.
type FeedRequest struct {
	UserID  string
	Type    FeedType
	PerPage int    // borné à 50, défaut 15
	Cursor  string // token opaque, absent = première page
	Filters *FeedFilters
	Period  Period // chronologique uniquement
}

// RankedItem : un contenu + le score et la stratégie qui l'ont produit.
// C'est AUSSI le DTO sérialisé dans le cache Redis (d'où les tags JSON).
type RankedItem struct {
	Item     ContentItem `json:"item"`
	Score    float64     `json:"score"`
	Strategy FeedType    `json:"strategy"`
}

// Cursor pointe une position dans une séquence déjà classée.
// Durée de vie : un aller-retour client, jamais persisté.
type Cursor struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Score     float64   `json:"score"`
}

// Pagination est l'enveloppe renvoyée avec chaque page.
type Pagination struct {
	HasMore        bool    `json:"has_more"`
	NextCursor     *string `json:"next_cursor"`
	Count          int     `json:"count"`
	TotalAvailable int     `json:"total_available"`
}

// FeedPage est le résultat complet de GenerateFeed.
type FeedPage struct {
	Items      []RankedItem `json:"items"`
	Pagination Pagination   `json:"pagination"`
}
