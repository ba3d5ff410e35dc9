package results

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"interviewprep/internal/feed"
	"interviewprep/internal/models"
	"interviewprep/internal/redis"
)

const listCachePrefix = "results:list:"

func listCacheKey(userID int64) string {
	return listCachePrefix + strconv.FormatInt(userID, 10)
}

// List returns the user's analyses newest first, served from redis when warm.
// Concurrent misses for one user share a single database query.
func (s *Service) List(ctx context.Context, userID int64) ([]models.AnalysisResult, error) {
	if list, ok := s.cachedList(ctx, userID); ok {
		return list, nil
	}
	v, err, _ := s.group.Do(listCacheKey(userID), func() (any, error) {
		gen := s.gens.current(userID)
		list, err := s.listFromDB(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.storeList(ctx, userID, list)
		// An insert landed while the rows were being read; the stored list is stale.
		if s.gens.current(userID) != gen {
			s.dropList(ctx, userID)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.AnalysisResult), nil
}

// OnEvent drops the cached list when one of the user's analyses changes.
func (s *Service) OnEvent(ev feed.Event) {
	if ev.Table != feed.TableAnalyses || ev.UserID <= 0 {
		return
	}
	s.invalidate(context.Background(), ev.UserID)
}

func (s *Service) cachedList(ctx context.Context, userID int64) ([]models.AnalysisResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, listCacheKey(userID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warnf("load cached results for user %d failed: %v", userID, err)
		}
		return nil, false
	}
	var list []models.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.log.Warnf("decode cached results for user %d failed: %v", userID, err)
		return nil, false
	}
	return list, true
}

func (s *Service) storeList(ctx context.Context, userID int64, list []models.AnalysisResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		s.log.Warnf("encode results cache: %v", err)
		return
	}
	if err := s.cache.Set(ctx, listCacheKey(userID), string(data), s.cacheTTL); err != nil {
		s.log.Warnf("store results cache for user %d failed: %v", userID, err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	s.gens.bump(userID)
	s.dropList(ctx, userID)
}

func (s *Service) dropList(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, listCacheKey(userID)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warnf("invalidate results cache for user %d failed: %v", userID, err)
	}
}

// listGenerations counts invalidations per user so a list read that raced
// with a write is not left in the cache.
type listGenerations struct {
	mu     sync.Mutex
	byUser map[int64]uint64
}

func (g *listGenerations) current(userID int64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byUser[userID]
}

func (g *listGenerations) bump(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byUser == nil {
		g.byUser = make(map[int64]uint64)
	}
	g.byUser[userID]++
}
