package services

import (
	"context"
	"strings"
	"time"

	"github.com/jupiterclapton/maillage/internal/core/domain"
)

// Fakes en mémoire des ports secondaires. Volontairement bêtes : ils
// renvoient ce qu'on leur donne (bornés par limit) et comptent les appels
// pour vérifier les court-circuits.

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

type fakeContent struct {
	timeline []domain.ContentItem
	authored []domain.ContentItem
	public   []domain.ContentItem
	discover []domain.ContentItem

	timelineCalls int
	authoredCalls int
	publicCalls   int
	discoverCalls int

	lastSince time.Time
	err       error
}

func (f *fakeContent) TimelinePool(_ context.Context, _ string, _ []string, since time.Time, limit int) ([]domain.ContentItem, error) {
	f.timelineCalls++
	f.lastSince = since
	return clipItems(f.timeline, limit), f.err
}

func (f *fakeContent) AuthoredPool(_ context.Context, _ []string, limit int) ([]domain.ContentItem, error) {
	f.authoredCalls++
	return clipItems(f.authored, limit), f.err
}

func (f *fakeContent) PublicPool(_ context.Context, since time.Time, limit int) ([]domain.ContentItem, error) {
	f.publicCalls++
	f.lastSince = since
	return clipItems(f.public, limit), f.err
}

func (f *fakeContent) DiscoverPool(_ context.Context, _ []string, _ []string, _ int, since time.Time, limit int) ([]domain.ContentItem, error) {
	f.discoverCalls++
	f.lastSince = since
	return clipItems(f.discover, limit), f.err
}

func clipItems(items []domain.ContentItem, limit int) []domain.ContentItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

type fakeGraph struct {
	friends   map[string][]string
	following map[string][]string
	statuses  map[string]map[string]domain.FriendStatus
	err       error
}

func (f *fakeGraph) FriendIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.friends[userID], nil
}

func (f *fakeGraph) FollowingIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.following[userID], nil
}

func (f *fakeGraph) RelationStatuses(_ context.Context, userID string) (map[string]domain.FriendStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	statuses := f.statuses[userID]
	if statuses == nil {
		statuses = map[string]domain.FriendStatus{}
	}
	return statuses, nil
}

// symmetricFriends construit la map d'adjacence acceptée des deux côtés
// à partir de paires, comme le ferait le MATCH non dirigé de Neo4j.
func symmetricFriends(pairs [][2]string) map[string][]string {
	m := make(map[string][]string)
	for _, p := range pairs {
		m[p[0]] = append(m[p[0]], p[1])
		m[p[1]] = append(m[p[1]], p[0])
	}
	return m
}

type fakeProfiles struct {
	profiles map[string]domain.UserProfile
	err      error
}

func (f *fakeProfiles) Profile(_ context.Context, userID string) (*domain.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProfiles) Profiles(_ context.Context, userIDs []string) (map[string]domain.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.UserProfile)
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeCache struct {
	store map[string][]domain.RankedItem
	ttls  map[string]time.Duration

	gets, sets int
	getErr     error
	setErr     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		store: make(map[string][]domain.RankedItem),
		ttls:  make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]domain.RankedItem, bool, error) {
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	items, ok := f.store[key]
	return items, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, items []domain.RankedItem, ttl time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.store[key] = items
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range f.store {
		if strings.HasPrefix(key, prefix) {
			delete(f.store, key)
		}
	}
	return nil
}
