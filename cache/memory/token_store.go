// Package memory implements the token liveness store in process memory,
// backed by ttlcache. It serves single-node development and the test suite;
// production deployments use the redis implementation.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/libris-app/libris/cache"
	"github.com/libris-app/libris/domain"
)

// TokenStore implements cache.TokenStore using ttlcache for the liveness
// records and plain maps for the membership sets.
type TokenStore struct {
	live       *ttlcache.Cache[string, string]
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu          sync.Mutex
	refreshSets map[string]map[string]struct{} // subject -> refresh ids
	accessSets  map[string]map[string]struct{} // subject+refresh -> access ids
}

// NewTokenStore creates an in-memory token store with automatic expiry of
// liveness records. Set bookkeeping is pruned when records expire, so the
// maps track only live tokens.
func NewTokenStore(accessTTL, refreshTTL time.Duration) *TokenStore {
	live := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	s := &TokenStore{
		live:        live,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		refreshSets: make(map[string]map[string]struct{}),
		accessSets:  make(map[string]map[string]struct{}),
	}
	live.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
		// Explicit deletes already clean up their sets under s.mu; only
		// natural expiry needs the callback.
		if reason == ttlcache.EvictionReasonExpired {
			s.pruneExpired(item.Key(), item.Value())
		}
	})
	go live.Start()

	return s
}

// pruneExpired drops the set entries of a liveness record that expired
// naturally. key is the record's liveness key, value the subject id.
func (s *TokenStore) pruneExpired(key, subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refreshID, ok := strings.CutPrefix(key, string(domain.TokenKindRefresh)+"_token:"); ok {
		delete(s.accessSets, accessSetKey(subjectID, refreshID))
		if set := s.refreshSets[subjectID]; set != nil {
			delete(set, refreshID)
			if len(set) == 0 {
				delete(s.refreshSets, subjectID)
			}
		}
		return
	}

	if accessID, ok := strings.CutPrefix(key, string(domain.TokenKindAccess)+"_token:"); ok {
		prefix := subjectID + ":"
		for setKey, set := range s.accessSets {
			if !strings.HasPrefix(setKey, prefix) {
				continue
			}
			delete(set, accessID)
			if len(set) == 0 {
				delete(s.accessSets, setKey)
			}
		}
	}
}

func livenessKey(kind domain.TokenKind, tokenID string) string {
	return fmt.Sprintf("%s_token:%s", kind, tokenID)
}

func accessSetKey(subjectID, refreshID string) string {
	return subjectID + ":" + refreshID
}

// RecordRefreshToken implements cache.TokenStore.
func (s *TokenStore) RecordRefreshToken(_ context.Context, subjectID, refreshID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live.Set(livenessKey(domain.TokenKindRefresh, refreshID), subjectID, s.refreshTTL)
	if s.refreshSets[subjectID] == nil {
		s.refreshSets[subjectID] = make(map[string]struct{})
	}
	s.refreshSets[subjectID][refreshID] = struct{}{}
	return nil
}

// RecordAccessToken implements cache.TokenStore.
func (s *TokenStore) RecordAccessToken(_ context.Context, subjectID, accessID, refreshID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live.Set(livenessKey(domain.TokenKindAccess, accessID), subjectID, s.accessTTL)
	key := accessSetKey(subjectID, refreshID)
	if s.accessSets[key] == nil {
		s.accessSets[key] = make(map[string]struct{})
	}
	s.accessSets[key][accessID] = struct{}{}
	return nil
}

// IsLive implements cache.TokenStore.
func (s *TokenStore) IsLive(_ context.Context, kind domain.TokenKind, tokenID string) (bool, error) {
	return s.live.Get(livenessKey(kind, tokenID)) != nil, nil
}

// RevokeRefreshToken implements cache.TokenStore. Revoking an unknown token
// is a no-op, matching the redis implementation.
func (s *TokenStore) RevokeRefreshToken(_ context.Context, subjectID, refreshID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeRefreshLocked(subjectID, refreshID)
	return nil
}

func (s *TokenStore) revokeRefreshLocked(subjectID, refreshID string) {
	key := accessSetKey(subjectID, refreshID)
	for accessID := range s.accessSets[key] {
		s.live.Delete(livenessKey(domain.TokenKindAccess, accessID))
	}
	delete(s.accessSets, key)

	s.live.Delete(livenessKey(domain.TokenKindRefresh, refreshID))
	if set := s.refreshSets[subjectID]; set != nil {
		delete(set, refreshID)
		if len(set) == 0 {
			delete(s.refreshSets, subjectID)
		}
	}
}

// RevokeAllRefreshTokens implements cache.TokenStore.
func (s *TokenStore) RevokeAllRefreshTokens(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for refreshID := range s.refreshSets[subjectID] {
		s.revokeRefreshLocked(subjectID, refreshID)
	}
	delete(s.refreshSets, subjectID)
	return nil
}

// Close stops the expiry goroutine.
func (s *TokenStore) Close() {
	s.live.Stop()
}

var _ cache.TokenStore = (*TokenStore)(nil)
