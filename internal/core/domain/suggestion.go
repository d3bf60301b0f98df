package domain

import "errors"

// SuggestionAlgorithm identifie un algorithme de suggestion d'amis.
// Même contrat que FeedType : ensemble fermé, switch exhaustif.
type SuggestionAlgorithm string

const (
	AlgoMutualConnections SuggestionAlgorithm = "mutual_connections"
	AlgoFriendsOfFriends  SuggestionAlgorithm = "friends_of_friends"
	AlgoNetworkAnalysis   SuggestionAlgorithm = "network_analysis"
	AlgoHybrid            SuggestionAlgorithm = "hybrid"
)

var ErrUnknownAlgorithm = errors.New("unknown suggestion algorithm")

func ParseSuggestionAlgorithm(s string) (SuggestionAlgorithm, error) {
	switch SuggestionAlgorithm(s) {
	case AlgoMutualConnections, AlgoFriendsOfFriends, AlgoNetworkAnalysis, AlgoHybrid:
		return SuggestionAlgorithm(s), nil
	case "":
		return AlgoMutualConnections, nil
	default:
		return "", ErrUnknownAlgorithm
	}
}

// SubScores : décomposition nommée du score composite.
// Invariant : chaque sous-score est dans [0,1] AVANT pondération.
type SubScores struct {
	MutualConnections   float64 `json:"mutual_connections"`
	ProfileCompleteness float64 `json:"profile_completeness"`
	ActivityLevel       float64 `json:"activity_level"`
	InterestSimilarity  float64 `json:"interest_similarity"`
	LocationProximity   float64 `json:"location_proximity"`
	RecencyBoost        float64 `json:"recency_boost"`
}

// SuggestionCandidate : un candidat classé. Objet transient, il ne vit que
// le temps d'un appel GetSuggestions.
type SuggestionCandidate struct {
	UserID             string     `json:"user_id"`
	Name               string     `json:"name,omitempty"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	Verified           bool       `json:"verified"`
	MutualFriendsCount int        `json:"mutual_friends_count"`
	DegreeOfSeparation int        `json:"degree_of_separation,omitempty"` // 0 = inconnu
	TotalScore         float64    `json:"total_score"`
	AlgorithmCount     int        `json:"algorithm_count,omitempty"` // network_analysis : nb de sous-algos ayant produit un score
	SubScores          *SubScores `json:"sub_scores,omitempty"`      // attaché si include_scores
	Reason             string     `json:"suggestion_reason"`
}

// SuggestionRequest encapsule les options de GetSuggestions.
type SuggestionRequest struct {
	UserID           string
	Count            int // borné à 100, défaut 10
	Algorithm        SuggestionAlgorithm
	IncludeScores    bool
	MinScore         float64 // défaut 0.1
	MinMutualFriends int     // mutual_connections uniquement, défaut 1
}
