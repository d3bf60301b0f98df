package services

import (
	"math"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// Fonctions de scoring PURES : pas d'I/O, pas d'horloge globale.
// Tout instant vient en paramètre pour que les tests soient déterministes.

// Pondérations du score composite de suggestion. La somme fait 1.0,
// c'est vérifié par les tests, pas par le code.
const (
	WeightMutualConnections   = 0.40
	WeightProfileCompleteness = 0.15
	WeightActivityLevel       = 0.15
	WeightInterestSimilarity  = 0.15
	WeightLocationProximity   = 0.10
	WeightRecencyBoost        = 0.05
)

// TrendingThreshold : en dessous ou égal, un item est EXCLU du trending
// (pas juste mal classé).
const TrendingThreshold = 5.0

// PreferentialAttachmentFloor : on ne suggère que des inconnus déjà bien
// connectés, le signal est nul en dessous.
const PreferentialAttachmentFloor = 10

// EngagementScore calcule le score du feed algorithmique.
// La division par l'âge en heures fait décroître les vieux cartons :
// sans elle, un item très likés dominerait le feed indéfiniment.
func EngagementScore(item domain.ContentItem, authorIsFriend, isPreferredType bool, now time.Time) float64 {
	score := float64(item.LikesCount)*2 +
		float64(item.Comments)*3 +
		float64(item.Shares)*4 +
		float64(item.Views)*0.1

	if authorIsFriend {
		score += 10
	}
	if item.Visibility == domain.VisibilityPublic {
		score += 2
	}
	if now.Sub(item.CreatedAt) < 6*time.Hour {
		score += 5
	}
	if isPreferredType {
		score += 3
	}

	hours := now.Sub(item.CreatedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	return score / hours
}

// TrendingScore : somme pondérée brute, sans décroissance (le pool trending
// est déjà borné aux dernières 24h).
func TrendingScore(item domain.ContentItem) float64 {
	return float64(item.LikesCount)*1.5 +
		float64(item.Comments)*2 +
		float64(item.Shares)*3 +
		float64(item.Views)*0.05
}

// JaccardSimilarity = |A∩B| / |A∪B|, 0 si l'union est vide.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// PreferentialAttachmentScore = ln(n+1) au-delà du plancher de popularité,
// 0 sinon. Politique assumée : ne suggérer que des inconnus bien connectés.
func PreferentialAttachmentScore(friendCount int) float64 {
	if friendCount <= PreferentialAttachmentFloor {
		return 0
	}
	return math.Log(float64(friendCount) + 1)
}

// SimilarityPercentage : ratio de similarité caractère par caractère dans
// [0,100]. Primitive boîte noire (plus longue sous-chaîne commune, appliquée
// récursivement de part et d'autre), utilisée pour la déduplication du
// feed discover.
func SimilarityPercentage(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 100
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	sim := similarChars(ra, rb)
	return float64(sim) * 200 / float64(len(ra)+len(rb))
}

// similarChars : nombre de caractères communs, méthode similar_text
// (LCS glouton + récursion sur les segments restants).
func similarChars(a, b []rune) int {
	posA, posB, maxLen := 0, 0, 0
	for i := range a {
		for j := range b {
			l := 0
			for i+l < len(a) && j+l < len(b) && a[i+l] == b[j+l] {
				l++
			}
			if l > maxLen {
				posA, posB, maxLen = i, j, l
			}
		}
	}
	if maxLen == 0 {
		return 0
	}
	sum := maxLen
	if posA > 0 && posB > 0 {
		sum += similarChars(a[:posA], b[:posB])
	}
	if posA+maxLen < len(a) && posB+maxLen < len(b) {
		sum += similarChars(a[posA+maxLen:], b[posB+maxLen:])
	}
	return sum
}

// CompositeSuggestionScore : somme pondérée des sous-scores.
// Chaque sous-score doit être dans [0,1], le total l'est donc aussi.
func CompositeSuggestionScore(s domain.SubScores) float64 {
	return s.MutualConnections*WeightMutualConnections +
		s.ProfileCompleteness*WeightProfileCompleteness +
		s.ActivityLevel*WeightActivityLevel +
		s.InterestSimilarity*WeightInterestSimilarity +
		s.LocationProximity*WeightLocationProximity +
		s.RecencyBoost*WeightRecencyBoost
}

// --- Normalisations des sous-scores ---
// Chaque sous-score doit tomber dans [0,1] avant pondération ; les bornes
// ci-dessous sont les politiques retenues (voir DESIGN.md).

// normalizeMutualCount : saturation à 10 amis communs.
func normalizeMutualCount(count int) float64 {
	if count >= 10 {
		return 1
	}
	if count < 0 {
		return 0
	}
	return float64(count) / 10
}

// activityLevel : décroissance linéaire sur une semaine d'inactivité.
func activityLevel(lastActive, now time.Time) float64 {
	if lastActive.IsZero() {
		return 0
	}
	hours := now.Sub(lastActive).Hours()
	if hours <= 0 {
		return 1
	}
	const window = 7 * 24
	if hours >= window {
		return 0
	}
	return 1 - hours/window
}

// locationProximity : même ville 1.0, même pays 0.5, sinon 0.
func locationProximity(a, b domain.UserProfile) float64 {
	if a.City != "" && a.City == b.City {
		return 1
	}
	if a.Country != "" && a.Country == b.Country {
		return 0.5
	}
	return 0
}

// recencyBoost : coup de pouce aux comptes créés il y a moins de 30 jours.
func recencyBoost(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := now.Sub(createdAt).Hours() / 24
	if days <= 0 {
		return 1
	}
	if days >= 30 {
		return 0
	}
	return 1 - days/30
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
