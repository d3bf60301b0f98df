package services

import "github.com/jupiterclapton/maillage/internal/core/domain"

// ApplyFilters applique les prédicats APRÈS classement, AVANT pagination.
// Suppression pure : l'ordre et les scores des survivants ne bougent pas.
func ApplyFilters(items []domain.RankedItem, f *domain.FeedFilters) []domain.RankedItem {
	if f == nil {
		return items
	}

	typeSet := make(map[domain.ContentType]struct{}, len(f.ContentTypes))
	for _, t := range f.ContentTypes {
		typeSet[t] = struct{}{}
	}
	excluded := toSet(f.ExcludedAuthors)
	wantedTags := toSet(f.Hashtags)

	out := make([]domain.RankedItem, 0, len(items))
	for _, ri := range items {
		if !matchesFilters(ri.Item, f, typeSet, excluded, wantedTags) {
			continue
		}
		out = append(out, ri)
	}
	return out
}

func matchesFilters(item domain.ContentItem, f *domain.FeedFilters,
	typeSet map[domain.ContentType]struct{}, excluded, wantedTags map[string]struct{}) bool {

	if len(typeSet) > 0 {
		if _, ok := typeSet[item.Type]; !ok {
			return false
		}
	}
	if f.HasMedia != nil && item.HasMedia != *f.HasMedia {
		return false
	}
	// Bornes de dates inclusives, sur la date de publication effective.
	published := item.EffectivePublishedAt()
	if f.DateFrom != nil && published.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && published.After(*f.DateTo) {
		return false
	}
	if f.MinEngagement > 0 && item.TotalEngagement() < f.MinEngagement {
		return false
	}
	if _, ok := excluded[item.AuthorID]; ok {
		return false
	}
	// Hashtags : intersection non vide suffit.
	if len(wantedTags) > 0 {
		found := false
		for _, tag := range item.Hashtags {
			if _, ok := wantedTags[tag]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
