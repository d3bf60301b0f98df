package domain

import "time"

// FriendStatus est le statut porté par une arête FRIEND (symétrique).
// Seul "accepted" alimente les signaux de classement.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendBlocked  FriendStatus = "blocked"
	FriendDeclined FriendStatus = "declined"
)

// SocialEdge représente un lien du graphe social (FRIEND ou FOLLOWS).
type SocialEdge struct {
	ActorID   string
	TargetID  string
	Status    FriendStatus // FRIEND uniquement
	Muted     bool         // FOLLOWS uniquement
	Close     bool         // "close friend" sur un FOLLOWS
	CreatedAt time.Time
}

// UserProfile : projection en lecture des champs de profil dont le moteur
// de suggestion a besoin (filtres + sous-scores + enrichissement).
type UserProfile struct {
	ID                  string
	Name                string
	AvatarURL           string
	Verified            bool
	IsPrivate           bool
	AllowFriendRequests bool
	Completeness        float64 // [0,1], pré-calculé côté store
	Interests           []string
	PreferredTypes      []ContentType
	City                string
	Country             string
	LastActiveAt        time.Time
	CreatedAt           time.Time
}
