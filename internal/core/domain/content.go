package domain

import "time"

type ContentType string

const (
	TypePost    ContentType = "post"
	TypeVideo   ContentType = "video"
	TypeImage   ContentType = "image"
	TypeArticle ContentType = "article"
)

// Visibility contrôle qui a le droit de voir un contenu.
// La valeur est stockée telle quelle en base (enum Postgres).
type Visibility string

const (
	VisibilityPublic           Visibility = "public"
	VisibilityFriends          Visibility = "friends"
	VisibilityCloseFriends     Visibility = "close_friends"
	VisibilityFriendsOfFriends Visibility = "friends_of_friends"
	VisibilityGroup            Visibility = "group"
	VisibilityPrivate          Visibility = "private"
	VisibilityCustom           Visibility = "custom"
)

// ContentItem est une projection en LECTURE SEULE du store de contenu.
// Le moteur de feed ne modifie jamais ces lignes, il les classe.
// Les tags JSON servent à la sérialisation vers Redis (DTO aplati, jamais
// d'objet "vivant" dans le cache).
type ContentItem struct {
	ID          string      `json:"id"`
	AuthorID    string      `json:"author_id"`
	Type        ContentType `json:"type"`
	Body        string      `json:"body"`
	Visibility  Visibility  `json:"visibility"`
	GroupID     string      `json:"group_id,omitempty"`
	Hashtags    []string    `json:"hashtags,omitempty"`
	HasMedia    bool        `json:"has_media"`
	Hidden      bool        `json:"hidden"`
	Reported    bool        `json:"reported"`
	LikesCount  int         `json:"likes_count"`
	Comments    int         `json:"comments_count"`
	Shares      int         `json:"shares_count"`
	Views       int         `json:"views_count"`
	CreatedAt   time.Time   `json:"created_at"`
	PublishedAt time.Time   `json:"published_at"`
}

// EffectivePublishedAt : certains contenus anciens n'ont pas de date de
// publication distincte, on retombe alors sur la date de création.
func (c ContentItem) EffectivePublishedAt() time.Time {
	if c.PublishedAt.IsZero() {
		return c.CreatedAt
	}
	return c.PublishedAt
}

// TotalEngagement sert au filtre "engagement minimum" (les vues n'en font
// pas partie : elles sont trop faciles à gonfler).
func (c ContentItem) TotalEngagement() int {
	return c.LikesCount + c.Comments + c.Shares
}

// Visible indique si l'item a le droit d'apparaître dans un feed classé.
// Invariant : un contenu masqué ou signalé est exclu de TOUTE sortie.
func (c ContentItem) Visible() bool {
	return !c.Hidden && !c.Reported
}
