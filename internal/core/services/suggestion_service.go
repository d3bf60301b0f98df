package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jupiterclapton/maillage/internal/core/domain"
	"github.com/jupiterclapton/maillage/internal/core/ports"
)

// Pondérations de l'algorithme hybride.
const (
	hybridWeightMutual  = 0.5
	hybridWeightNetwork = 0.3
	hybridWeightFoF     = 0.2
)

const (
	defaultSuggestionCount = 10
	maxSuggestionCount     = 100
	defaultMinScore        = 0.1
	defaultMinMutual       = 1

	// maxSuggestionDegree : les amis-d'amis-d'amis (degré 3) sont le bout
	// du monde exploré, au-delà le signal ne vaut plus le coût du BFS.
	maxSuggestionDegree = 3
)

// SuggestionService produit des candidats de connexion classés à partir
// de signaux de proximité du graphe. Transient de bout en bout : rien
// n'est caché ni persisté.
type SuggestionService struct {
	graph    ports.GraphRepository
	profiles ports.ProfileRepository
	clock    ports.Clock
}

func NewSuggestionService(graph ports.GraphRepository, profiles ports.ProfileRepository, clock ports.Clock) *SuggestionService {
	return &SuggestionService{graph: graph, profiles: profiles, clock: clock}
}

// rawCandidate : score brut d'UN algorithme avant enrichissement.
type rawCandidate struct {
	userID         string
	mutualCount    int
	degree         int // 0 = inconnu
	score          float64
	algorithmCount int // network_analysis : sous-algos ayant produit un score
}

func (s *SuggestionService) GetSuggestions(ctx context.Context, req domain.SuggestionRequest) ([]domain.SuggestionCandidate, error) {
	tracer := otel.Tracer("maillage")
	ctx, span := tracer.Start(ctx, "get_suggestions")
	defer span.End()

	algorithm, err := domain.ParseSuggestionAlgorithm(string(req.Algorithm))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, req.Algorithm)
	}
	span.SetAttributes(attribute.String("suggestion.algorithm", string(algorithm)))

	count := req.Count
	if count <= 0 {
		count = defaultSuggestionCount
	}
	if count > maxSuggestionCount {
		count = maxSuggestionCount
	}
	minScore := req.MinScore
	if minScore == 0 {
		minScore = defaultMinScore
	}
	minMutual := req.MinMutualFriends
	if minMutual <= 0 {
		minMutual = defaultMinMutual
	}

	// Ensemble d'exclusion : soi-même + toute relation existante qui
	// interdit la suggestion (ami, demande en attente, blocage).
	// Une relation "declined" N'exclut PAS : on peut retenter sa chance.
	relations, err := s.graph.RelationStatuses(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("suggestions: load relations: %w", err)
	}
	excluded := map[string]struct{}{req.UserID: {}}
	for id, status := range relations {
		switch status {
		case domain.FriendAccepted, domain.FriendPending, domain.FriendBlocked:
			excluded[id] = struct{}{}
		}
	}

	adj := newAdjacency(s.graph)

	// Les exclusions de profil (demandes fermées, privé, introuvable) passent
	// par le gate AVANT scoring : un inéligible ne doit jamais consommer une
	// place de résultat ni le budget d'arrêt anticipé du BFS.
	gate := newProfileGate(s.profiles)

	var raw []rawCandidate
	switch algorithm {
	case domain.AlgoMutualConnections:
		raw, err = s.mutualConnections(ctx, adj, gate, req.UserID, excluded, minMutual)
	case domain.AlgoFriendsOfFriends:
		raw, err = s.friendsOfFriends(ctx, adj, gate, req.UserID, excluded, count)
	case domain.AlgoNetworkAnalysis:
		raw, err = s.networkAnalysis(ctx, adj, gate, req.UserID, excluded)
	case domain.AlgoHybrid:
		raw, err = s.hybrid(ctx, adj, gate, req.UserID, excluded, count, minMutual)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, algorithm)
	}
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, req.UserID, raw, count, minScore, req.IncludeScores)
}

// mutualConnections : compte les voisins acceptés communs (les deux sens
// d'adjacence confondus), exige count >= minMutual, classe par count
// décroissant.
func (s *SuggestionService) mutualConnections(ctx context.Context, adj *adjacency, gate *profileGate, userID string, excluded map[string]struct{}, minMutual int) ([]rawCandidate, error) {
	friends, err := adj.friends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mutual_connections: %w", err)
	}

	counts := make(map[string]int)
	for _, friend := range friends {
		theirs, err := adj.friends(ctx, friend)
		if err != nil {
			return nil, fmt.Errorf("mutual_connections: %w", err)
		}
		for _, candidate := range theirs {
			if _, skip := excluded[candidate]; skip {
				continue
			}
			counts[candidate]++
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	eligible, err := gate.eligible(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("mutual_connections: %w", err)
	}

	raw := make([]rawCandidate, 0, len(counts))
	for id, c := range counts {
		if c < minMutual || !eligible[id] {
			continue
		}
		raw = append(raw, rawCandidate{userID: id, mutualCount: c, degree: 2})
	}
	sort.Slice(raw, func(i, j int) bool {
		if raw[i].mutualCount != raw[j].mutualCount {
			return raw[i].mutualCount > raw[j].mutualCount
		}
		return raw[i].userID < raw[j].userID
	})
	return raw, nil
}

// friendsOfFriends : BFS degrés 2..3, score 1/degré (plus proche = plus
// haut), arrêt anticipé dès que le compte demandé est rempli. Seuls les
// candidats éligibles consomment le budget d'arrêt : un profil fermé aux
// demandes reste traversable (il peut mener à un degré 3 éligible) mais
// ne prend jamais de place.
func (s *SuggestionService) friendsOfFriends(ctx context.Context, adj *adjacency, gate *profileGate, userID string, excluded map[string]struct{}, wanted int) ([]rawCandidate, error) {
	friends, err := adj.friends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("friends_of_friends: %w", err)
	}

	visited := map[string]struct{}{userID: {}}
	for _, f := range friends {
		visited[f] = struct{}{}
	}

	var raw []rawCandidate
	frontier := friends
	for degree := 2; degree <= maxSuggestionDegree && len(raw) < wanted; degree++ {
		// mutualParents : combien de noeuds du front précédent mènent au
		// candidat. Au degré 2 c'est exactement le compte d'amis communs.
		mutualParents := make(map[string]int)
		var nextFrontier []string

		for _, node := range frontier {
			neighbors, err := adj.friends(ctx, node)
			if err != nil {
				return nil, fmt.Errorf("friends_of_friends: %w", err)
			}
			for _, n := range neighbors {
				if _, seen := visited[n]; seen {
					if _, already := mutualParents[n]; already {
						mutualParents[n]++
					}
					continue
				}
				visited[n] = struct{}{}
				mutualParents[n] = 1
				nextFrontier = append(nextFrontier, n)
			}
		}

		sort.Strings(nextFrontier) // ordre stable pour l'arrêt anticipé
		eligible, err := gate.eligible(ctx, nextFrontier)
		if err != nil {
			return nil, fmt.Errorf("friends_of_friends: %w", err)
		}
		for _, id := range nextFrontier {
			if _, skip := excluded[id]; skip {
				continue
			}
			if !eligible[id] {
				continue
			}
			mutual := 0
			if degree == 2 {
				mutual = mutualParents[id]
			}
			raw = append(raw, rawCandidate{
				userID:      id,
				mutualCount: mutual,
				degree:      degree,
				score:       1 / float64(degree),
			})
			if len(raw) >= wanted {
				break
			}
		}
		frontier = nextFrontier
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].score > raw[j].score })
	return raw, nil
}

// networkAnalysis : moyenne de trois signaux calculés indépendamment par
// candidat (ratio de voisins communs, Jaccard, attachement préférentiel).
// algorithmCount trace combien de signaux ont effectivement produit un score.
func (s *SuggestionService) networkAnalysis(ctx context.Context, adj *adjacency, gate *profileGate, userID string, excluded map[string]struct{}) ([]rawCandidate, error) {
	friends, err := adj.friends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("network_analysis: %w", err)
	}
	friendSet := toSet(friends)

	// Candidats = voisins au degré 2 exactement.
	neighbors, err := adj.neighborsAtDegree(ctx, userID, 2)
	if err != nil {
		return nil, fmt.Errorf("network_analysis: %w", err)
	}
	candidates := make([]string, 0, len(neighbors))
	for _, c := range neighbors {
		if _, skip := excluded[c]; skip {
			continue
		}
		candidates = append(candidates, c)
	}
	eligible, err := gate.eligible(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("network_analysis: %w", err)
	}

	// Normalisation du signal d'attachement : ln(n+1) est non borné, on le
	// ramène dans [0,1] par le plafond ln(1001) (~1000 amis).
	paCeiling := math.Log(1001)

	raw := make([]rawCandidate, 0, len(candidates))
	for _, id := range candidates {
		if !eligible[id] {
			continue
		}
		theirs, err := adj.friends(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("network_analysis: %w", err)
		}
		theirSet := toSet(theirs)

		mutual := 0
		for f := range friendSet {
			if _, ok := theirSet[f]; ok {
				mutual++
			}
		}

		var sum float64
		produced := 0

		if len(friendSet) > 0 {
			sum += float64(mutual) / float64(len(friendSet))
			produced++
		}

		sum += JaccardSimilarity(friendSet, theirSet)
		produced++

		if pa := PreferentialAttachmentScore(len(theirs)); pa > 0 {
			norm := pa / paCeiling
			if norm > 1 {
				norm = 1
			}
			sum += norm
			produced++
		}

		raw = append(raw, rawCandidate{
			userID:         id,
			mutualCount:    mutual,
			degree:         2,
			score:          sum / float64(produced),
			algorithmCount: produced,
		})
	}

	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].score != raw[j].score {
			return raw[i].score > raw[j].score
		}
		return raw[i].userID < raw[j].userID
	})
	return raw, nil
}

// hybrid : les trois algorithmes en parallèle logique, chacun sur le double
// du compte final, fusion par somme des scores pondérés.
func (s *SuggestionService) hybrid(ctx context.Context, adj *adjacency, gate *profileGate, userID string, excluded map[string]struct{}, count, minMutual int) ([]rawCandidate, error) {
	oversample := count * 2

	mutual, err := s.mutualConnections(ctx, adj, gate, userID, excluded, minMutual)
	if err != nil {
		return nil, err
	}
	if len(mutual) > oversample {
		mutual = mutual[:oversample]
	}

	network, err := s.networkAnalysis(ctx, adj, gate, userID, excluded)
	if err != nil {
		return nil, err
	}
	if len(network) > oversample {
		network = network[:oversample]
	}

	fof, err := s.friendsOfFriends(ctx, adj, gate, userID, excluded, oversample)
	if err != nil {
		return nil, err
	}

	// Le score mutual_connections est un compte, pas un [0,1] : on le
	// normalise avant pondération pour que la fusion reste homogène.
	merged := make(map[string]*rawCandidate)
	accumulate := func(list []rawCandidate, weight float64, normalize func(rawCandidate) float64) {
		for _, rc := range list {
			entry, ok := merged[rc.userID]
			if !ok {
				entry = &rawCandidate{userID: rc.userID}
				merged[rc.userID] = entry
			}
			entry.score += weight * normalize(rc)
			if rc.mutualCount > entry.mutualCount {
				entry.mutualCount = rc.mutualCount
			}
			if entry.degree == 0 || (rc.degree > 0 && rc.degree < entry.degree) {
				entry.degree = rc.degree
			}
		}
	}

	accumulate(mutual, hybridWeightMutual, func(rc rawCandidate) float64 { return normalizeMutualCount(rc.mutualCount) })
	accumulate(network, hybridWeightNetwork, func(rc rawCandidate) float64 { return rc.score })
	accumulate(fof, hybridWeightFoF, func(rc rawCandidate) float64 { return rc.score })

	raw := make([]rawCandidate, 0, len(merged))
	for _, entry := range merged {
		raw = append(raw, *entry)
	}
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].score != raw[j].score {
			return raw[i].score > raw[j].score
		}
		return raw[i].userID < raw[j].userID
	})
	if len(raw) > count {
		raw = raw[:count]
	}
	return raw, nil
}

// finalize : score composite, coupe min_score, troncature et enrichissement.
// Les filtres de profil ont déjà eu lieu dans le gate ; ils sont seulement
// ré-assertés ici.
func (s *SuggestionService) finalize(ctx context.Context, userID string,
	raw []rawCandidate, count int, minScore float64, includeScores bool) ([]domain.SuggestionCandidate, error) {

	if len(raw) == 0 {
		return []domain.SuggestionCandidate{}, nil
	}

	requester, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("suggestions: load requester profile: %w", err)
	}
	if requester == nil {
		requester = &domain.UserProfile{ID: userID}
	}

	ids := make([]string, 0, len(raw))
	for _, rc := range raw {
		ids = append(ids, rc.userID)
	}
	profiles, err := s.profiles.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("suggestions: load candidate profiles: %w", err)
	}

	now := s.clock.Now()
	requesterInterests := toSet(requester.Interests)

	out := make([]domain.SuggestionCandidate, 0, count)
	for _, rc := range raw {
		profile, ok := profiles[rc.userID]
		// Ré-assertion de l'éligibilité déjà vérifiée par le gate.
		if !ok || !profile.AllowFriendRequests || profile.IsPrivate {
			continue
		}

		subs := domain.SubScores{
			MutualConnections:   normalizeMutualCount(rc.mutualCount),
			ProfileCompleteness: profile.Completeness,
			ActivityLevel:       activityLevel(profile.LastActiveAt, now),
			InterestSimilarity:  JaccardSimilarity(requesterInterests, toSet(profile.Interests)),
			LocationProximity:   locationProximity(*requester, profile),
			RecencyBoost:        recencyBoost(profile.CreatedAt, now),
		}

		// total_score est le composite pondéré pour TOUS les algorithmes ;
		// le score brut de l'algorithme ne sert qu'au classement amont.
		total := CompositeSuggestionScore(subs)
		if total < minScore {
			continue
		}

		candidate := domain.SuggestionCandidate{
			UserID:             rc.userID,
			Name:               profile.Name,
			AvatarURL:          profile.AvatarURL,
			Verified:           profile.Verified,
			MutualFriendsCount: rc.mutualCount,
			DegreeOfSeparation: rc.degree,
			TotalScore:         total,
			AlgorithmCount:     rc.algorithmCount,
			Reason:             suggestionReason(rc, total),
		}
		if includeScores {
			breakdown := subs
			candidate.SubScores = &breakdown
		}
		out = append(out, candidate)

		if len(out) >= count {
			break
		}
	}
	return out, nil
}

// suggestionReason : raison lisible dérivée du signal le plus fort.
// Précédence : amis communs > degré de séparation > signal réseau > générique.
func suggestionReason(rc rawCandidate, total float64) string {
	switch {
	case rc.mutualCount == 1:
		return "1 mutual friend"
	case rc.mutualCount > 1:
		return fmt.Sprintf("%d mutual friends", rc.mutualCount)
	case rc.degree > 0:
		return "Friend of a friend"
	case total > 0:
		return "Active in your network"
	default:
		return "Suggested for you"
	}
}

// adjacency mémoïse les listes d'amis le temps D'UN appel : le BFS et les
// comptes d'amis communs retombent sans cesse sur les mêmes noeuds.
// Instantané point-in-time assumé : une amitié retirée en plein calcul
// peut encore compter, fenêtre de staleness acceptée.
type adjacency struct {
	graph ports.GraphRepository
	memo  map[string][]string
}

func newAdjacency(graph ports.GraphRepository) *adjacency {
	return &adjacency{graph: graph, memo: make(map[string][]string)}
}

func (a *adjacency) friends(ctx context.Context, userID string) ([]string, error) {
	if cached, ok := a.memo[userID]; ok {
		return cached, nil
	}
	friends, err := a.graph.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.memo[userID] = friends
	return friends, nil
}

// neighborsAtDegree : les ids à EXACTEMENT `degree` sauts (plus court chemin)
// de l'utilisateur, triés. Degré 1 = amis directs. Graphe vide ou id inconnu
// = slice vide, jamais une erreur. Une panne du store, elle, remonte.
func (a *adjacency) neighborsAtDegree(ctx context.Context, userID string, degree int) ([]string, error) {
	visited := map[string]struct{}{userID: {}}
	frontier := []string{userID}
	for d := 0; d < degree && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			neighbors, err := a.friends(ctx, node)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}
	sort.Strings(frontier)
	return frontier, nil
}

// profileGate mémoïse l'éligibilité des candidats le temps d'un appel.
// Un profil introuvable (impossible de vérifier allow_friend_requests),
// fermé aux demandes ou privé est écarté AVANT scoring : il ne consomme
// ni place de résultat ni budget d'arrêt anticipé.
type profileGate struct {
	profiles ports.ProfileRepository
	memo     map[string]bool
}

func newProfileGate(profiles ports.ProfileRepository) *profileGate {
	return &profileGate{profiles: profiles, memo: make(map[string]bool)}
}

// eligible charge en batch les profils pas encore vus et renvoie, pour
// chaque id donné, son éligibilité.
func (g *profileGate) eligible(ctx context.Context, ids []string) (map[string]bool, error) {
	var missing []string
	for _, id := range ids {
		if _, ok := g.memo[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		batch, err := g.profiles.Profiles(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			p, ok := batch[id]
			g.memo[id] = ok && p.AllowFriendRequests && !p.IsPrivate
		}
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = g.memo[id]
	}
	return out, nil
}
