package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

func newTestFeedService(content *fakeContent, graph *fakeGraph, profiles *fakeProfiles, cache *fakeCache) *FeedService {
	if content == nil {
		content = &fakeContent{}
	}
	if graph == nil {
		graph = &fakeGraph{}
	}
	if profiles == nil {
		profiles = &fakeProfiles{}
	}
	if cache == nil {
		cache = newFakeCache()
	}
	s := NewFeedService(content, graph, profiles, cache, fixedClock{now: testNow}, nil)
	s.newRand = func() *rand.Rand { return rand.New(rand.NewSource(42)) }
	return s
}

func publicItem(id string, age time.Duration) domain.ContentItem {
	return domain.ContentItem{
		ID:          id,
		AuthorID:    "author-" + id,
		Type:        domain.TypePost,
		Visibility:  domain.VisibilityPublic,
		CreatedAt:   testNow.Add(-age),
		PublishedAt: testNow.Add(-age),
	}
}

func TestGenerateFeedUnknownType(t *testing.T) {
	s := newTestFeedService(nil, nil, nil, nil)
	_, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: "definitely-not-a-feed"})
	if !errors.Is(err, domain.ErrUnknownFeedType) {
		t.Fatalf("expected ErrUnknownFeedType, got %v", err)
	}
}

func TestGenerateFeedChronologicalOrder(t *testing.T) {
	content := &fakeContent{timeline: []domain.ContentItem{
		publicItem("old", 3*time.Hour),
		publicItem("newest", 10*time.Minute),
		publicItem("middle", 1*time.Hour),
	}}
	s := newTestFeedService(content, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"newest", "middle", "old"}
	for i, id := range wantOrder {
		if page.Items[i].Item.ID != id {
			t.Errorf("position %d: got %s, want %s", i, page.Items[i].Item.ID, id)
		}
	}
	if page.Items[0].Strategy != domain.FeedChronological || page.Items[0].Score != 0 {
		t.Error("chronological items must carry no score")
	}
}

// Invariant : un item masqué ou signalé n'apparaît dans AUCUNE sortie,
// même si le repository en laisse passer un.
func TestGenerateFeedExcludesHiddenAndReported(t *testing.T) {
	hidden := publicItem("hidden", time.Hour)
	hidden.Hidden = true
	reported := publicItem("reported", time.Hour)
	reported.Reported = true

	content := &fakeContent{timeline: []domain.ContentItem{hidden, publicItem("ok", time.Hour), reported}}
	s := newTestFeedService(content, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Item.ID != "ok" {
		t.Fatalf("hidden/reported leaked into output: %+v", page.Items)
	}
}

func TestGenerateFeedPerPageBounds(t *testing.T) {
	content := &fakeContent{timeline: make([]domain.ContentItem, 0, 80)}
	for i := 0; i < 80; i++ {
		content.timeline = append(content.timeline, publicItem(fmt.Sprintf("i%02d", i), time.Duration(i)*time.Minute))
	}
	s := newTestFeedService(content, nil, nil, nil)

	// per_page par défaut
	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Count != DefaultPerPage {
		t.Errorf("default per_page: got %d, want %d", page.Pagination.Count, DefaultPerPage)
	}

	// per_page au-delà du plafond
	page, err = s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", PerPage: 200})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Count != MaxPerPage {
		t.Errorf("capped per_page: got %d, want %d", page.Pagination.Count, MaxPerPage)
	}
}

// P6 : personne de suivi = feed vide, hasMore=false, et AUCUNE requête de pool.
func TestGenerateFeedFollowingShortCircuit(t *testing.T) {
	content := &fakeContent{authored: []domain.ContentItem{publicItem("should-not-appear", time.Hour)}}
	graph := &fakeGraph{following: map[string][]string{}}
	s := newTestFeedService(content, graph, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "loner", Type: domain.FeedFollowing})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 || page.Pagination.HasMore {
		t.Errorf("expected empty page, got %+v", page.Pagination)
	}
	if content.authoredCalls != 0 {
		t.Errorf("pool queried %d times despite empty follow set", content.authoredCalls)
	}
}

func TestGenerateFeedFollowingOrder(t *testing.T) {
	content := &fakeContent{authored: []domain.ContentItem{
		publicItem("older", 2*time.Hour),
		publicItem("newer", 1*time.Hour),
	}}
	graph := &fakeGraph{following: map[string][]string{"u1": {"a1", "a2"}}}
	s := newTestFeedService(content, graph, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedFollowing})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].Item.ID != "newer" {
		t.Errorf("following feed not sorted by publish desc: %v", page.Items[0].Item.ID)
	}
}

// P5 + Scénario B : seuil d'exclusion trending et enveloppe de pagination
// après cap du pool.
func TestGenerateFeedTrending(t *testing.T) {
	pool := make([]domain.ContentItem, 0, 120)
	for i := 0; i < 120; i++ {
		item := publicItem(fmt.Sprintf("hot-%03d", i), time.Duration(i)*time.Minute)
		item.LikesCount = 10
		item.Comments = 5
		item.Shares = 2 // TrendingScore = 31
		pool = append(pool, item)
	}
	content := &fakeContent{public: pool}
	s := newTestFeedService(content, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedTrending, PerPage: 15})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Count != 15 {
		t.Errorf("count = %d, want 15", page.Pagination.Count)
	}
	if page.Pagination.TotalAvailable != PoolCap {
		t.Errorf("total_available = %d, want %d (post-cap)", page.Pagination.TotalAvailable, PoolCap)
	}
	if !page.Pagination.HasMore {
		t.Error("expected hasMore=true")
	}
	for i := 1; i < len(page.Items); i++ {
		if page.Items[i].Score > page.Items[i-1].Score {
			t.Fatal("trending page not sorted by score descending")
		}
	}
}

func TestGenerateFeedTrendingThreshold(t *testing.T) {
	hot := publicItem("hot", time.Hour)
	hot.LikesCount = 10 // 15 > 5
	cold := publicItem("cold", time.Hour)
	cold.LikesCount = 2 // 3 <= 5
	atThreshold := publicItem("at-threshold", time.Hour)
	atThreshold.Comments = 2 // 2*2 = 4
	atThreshold.Views = 20   // + 20*0.05 = 5, pile au seuil : exclu aussi

	content := &fakeContent{public: []domain.ContentItem{hot, cold, atThreshold}}
	s := newTestFeedService(content, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedTrending})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Item.ID != "hot" {
		t.Fatalf("threshold not enforced: %+v", page.Items)
	}
}

func TestGenerateFeedAlgorithmicRanksByEngagement(t *testing.T) {
	byFriend := publicItem("by-friend", 2*time.Hour)
	byFriend.AuthorID = "friend-1"
	byFriend.LikesCount = 10

	byStranger := publicItem("by-stranger", 2*time.Hour)
	byStranger.LikesCount = 10

	content := &fakeContent{timeline: []domain.ContentItem{byStranger, byFriend}}
	graph := &fakeGraph{friends: map[string][]string{"u1": {"friend-1"}}}
	s := newTestFeedService(content, graph, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedAlgorithmic})
	if err != nil {
		t.Fatal(err)
	}
	if page.Items[0].Item.ID != "by-friend" {
		t.Errorf("friend bonus not applied: first item %s", page.Items[0].Item.ID)
	}

	wantTop := EngagementScore(byFriend, true, false, testNow)
	if page.Items[0].Score != wantTop {
		t.Errorf("score = %v, want %v", page.Items[0].Score, wantTop)
	}
}

// Scénario C : deux appels dans la fenêtre TTL renvoient une sortie
// identique octet pour octet — le shuffle est figé par le cache, pas rejoué.
func TestGenerateFeedDiscoverCachedShuffle(t *testing.T) {
	pool := make([]domain.ContentItem, 0, 50)
	for i := 0; i < 50; i++ {
		item := publicItem(fmt.Sprintf("d-%02d", i), time.Duration(i)*time.Hour)
		item.LikesCount = 15
		pool = append(pool, item)
	}
	content := &fakeContent{discover: pool}
	cache := newFakeCache()
	s := newTestFeedService(content, nil, nil, cache)

	req := domain.FeedRequest{UserID: "u1", Type: domain.FeedDiscover, PerPage: 20}
	first, err := s.GenerateFeed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GenerateFeed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if content.discoverCalls != 1 {
		t.Errorf("pool recomputed %d times within TTL window", content.discoverCalls)
	}
	if cache.sets != 1 {
		t.Errorf("cache written %d times, want 1", cache.sets)
	}
	for i := range first.Items {
		if first.Items[i].Item.ID != second.Items[i].Item.ID {
			t.Fatalf("shuffle re-rolled within TTL at position %d", i)
		}
	}

	if ttl := cache.ttls[CacheKey("u1", domain.FeedDiscover, "", nil)]; ttl != 1800*time.Second {
		t.Errorf("discover TTL = %v, want 1800s", ttl)
	}
}

func TestGenerateFeedDiscoverShuffles(t *testing.T) {
	pool := make([]domain.ContentItem, 0, 30)
	for i := 0; i < 30; i++ {
		item := publicItem(fmt.Sprintf("d-%02d", i), time.Duration(i)*time.Hour)
		item.LikesCount = 15
		pool = append(pool, item)
	}
	s := newTestFeedService(&fakeContent{discover: pool}, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedDiscover, PerPage: 30})
	if err != nil {
		t.Fatal(err)
	}

	identity := true
	for i, ri := range page.Items {
		if ri.Item.ID != pool[i].ID {
			identity = false
			break
		}
	}
	if identity {
		t.Error("discover output matches input order, shuffle missing")
	}
}

func TestGenerateFeedDiscoverDeduplicates(t *testing.T) {
	a := publicItem("original", time.Hour)
	a.Body = "breaking: gophers ship a new release today"
	a.LikesCount = 15
	b := publicItem("near-copy", 2*time.Hour)
	b.Body = "breaking: gophers ship a new release today!"
	b.LikesCount = 15
	c := publicItem("unrelated", 3*time.Hour)
	c.Body = "completely different subject matter here"
	c.LikesCount = 15

	s := newTestFeedService(&fakeContent{discover: []domain.ContentItem{a, b, c}}, nil, nil, nil)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedDiscover})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %d items", len(page.Items))
	}
	seen := map[string]bool{}
	for _, ri := range page.Items {
		seen[ri.Item.ID] = true
	}
	if seen["original"] == seen["near-copy"] {
		t.Error("exactly one of the two near-duplicates must survive")
	}
}

func TestGenerateFeedBookmarksStub(t *testing.T) {
	s := newTestFeedService(nil, nil, nil, nil)
	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Type: domain.FeedBookmarks})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 || page.Pagination.HasMore {
		t.Errorf("bookmarks stub must return an empty page: %+v", page.Pagination)
	}
}

// Panne du cache = recalcul silencieux côté caller, jamais une erreur.
func TestGenerateFeedCacheFailOpen(t *testing.T) {
	content := &fakeContent{timeline: []domain.ContentItem{publicItem("a", time.Hour)}}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis still down")
	s := newTestFeedService(content, nil, nil, cache)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("cache failure leaked to caller: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected recomputed feed, got %d items", len(page.Items))
	}
}

// Panne du graphe = échec franc : classer sans adjacence produirait des
// résultats silencieusement faux.
func TestGenerateFeedGraphFailClosed(t *testing.T) {
	graph := &fakeGraph{err: errors.New("neo4j unreachable")}
	s := newTestFeedService(nil, graph, nil, nil)

	if _, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"}); err == nil {
		t.Fatal("expected graph failure to propagate")
	}
}

func TestGenerateFeedCacheHitSkipsPools(t *testing.T) {
	content := &fakeContent{}
	cache := newFakeCache()
	key := CacheKey("u1", domain.FeedChronological, "", nil)
	cache.store[key] = rankedFixture(5)
	s := newTestFeedService(content, nil, nil, cache)

	page, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if content.timelineCalls != 0 {
		t.Errorf("cache hit still queried the pool %d times", content.timelineCalls)
	}
	if len(page.Items) != 5 {
		t.Errorf("got %d items from cache, want 5", len(page.Items))
	}
}

// Deux jeux de filtres distincts ne partagent jamais une entrée de cache.
func TestGenerateFeedFilterKeysDoNotCollide(t *testing.T) {
	items := []domain.ContentItem{publicItem("a", time.Hour), publicItem("b", 2*time.Hour)}
	items[0].Type = domain.TypeVideo
	content := &fakeContent{timeline: items}
	cache := newFakeCache()
	s := newTestFeedService(content, nil, nil, cache)

	videoOnly := &domain.FeedFilters{ContentTypes: []domain.ContentType{domain.TypeVideo}}
	withFilter, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Filters: videoOnly})
	if err != nil {
		t.Fatal(err)
	}
	withoutFilter, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(withFilter.Items) != 1 || len(withoutFilter.Items) != 2 {
		t.Fatalf("filtered=%d unfiltered=%d, want 1 and 2", len(withFilter.Items), len(withoutFilter.Items))
	}
	if len(cache.store) != 2 {
		t.Errorf("expected 2 distinct cache entries, got %d", len(cache.store))
	}
}

func TestInvalidateForAudience(t *testing.T) {
	cache := newFakeCache()
	cache.store[CacheKey("author", domain.FeedChronological, "", nil)] = rankedFixture(1)
	cache.store[CacheKey("friend-1", domain.FeedAlgorithmic, "", nil)] = rankedFixture(1)
	cache.store[CacheKey("bystander", domain.FeedChronological, "", nil)] = rankedFixture(1)

	graph := &fakeGraph{friends: map[string][]string{"author": {"friend-1"}}}
	s := newTestFeedService(nil, graph, nil, cache)

	if err := s.InvalidateForAudience(context.Background(), "author"); err != nil {
		t.Fatal(err)
	}
	if len(cache.store) != 1 {
		t.Fatalf("expected only bystander entry to survive, got %d entries", len(cache.store))
	}
	if _, ok := cache.store[CacheKey("bystander", domain.FeedChronological, "", nil)]; !ok {
		t.Error("bystander cache wrongly invalidated")
	}
}

func TestGenerateFeedChronologicalPeriodWindow(t *testing.T) {
	content := &fakeContent{timeline: []domain.ContentItem{publicItem("a", time.Hour)}}
	s := newTestFeedService(content, nil, nil, nil)

	_, err := s.GenerateFeed(context.Background(), domain.FeedRequest{UserID: "u1", Period: domain.PeriodWeek})
	if err != nil {
		t.Fatal(err)
	}
	want := testNow.Add(-7 * 24 * time.Hour)
	if !content.lastSince.Equal(want) {
		t.Errorf("pool window = %v, want %v", content.lastSince, want)
	}
}
