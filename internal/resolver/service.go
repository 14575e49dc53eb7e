package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// StorePort resolves permission sets from the source of truth.
type StorePort interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
	ActiveUserIDsForRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
}

// CachePort is the Redis-backed effective-permission cache.
type CachePort interface {
	Get(ctx context.Context, userID uuid.UUID) ([]string, bool, error)
	Set(ctx context.Context, userID uuid.UUID, perms []string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Service answers permission checks cache-first with the database as the
// source of truth. A cache outage degrades to direct database resolution
// rather than failing the check.
type Service struct {
	store  StorePort
	cache  CachePort
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(store StorePort, cache CachePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// CheckPermission reports whether the user's effective set covers the
// requested resource:action pair, honouring wildcard grants.
func (s *Service) CheckPermission(ctx context.Context, userID uuid.UUID, resource, action string) (bool, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return MatchAny(perms, resource, action), nil
}

// EffectivePermissions returns the user's distinct sorted permission
// strings, cache-first. Concurrent misses for the same user are collapsed
// into a single database resolution.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if s.cache != nil {
		perms, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("permission cache degraded, resolving from database", slog.Any("error", err), slog.String("user_id", userID.String()))
			return s.store.EffectivePermissions(ctx, userID)
		}
		if ok {
			recordCacheHit()
			return perms, nil
		}
	}
	recordCacheMiss()

	resultChan := s.group.DoChan(userID.String(), func() (interface{}, error) {
		start := time.Now()
		defer func(start time.Time) {
			observeResolveDuration(time.Since(start))
		}(start)
		perms, err := s.store.EffectivePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, userID, perms); err != nil {
				s.logger.Warn("permission cache write failed", slog.Any("error", err), slog.String("user_id", userID.String()))
			}
		}
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// InvalidateUser drops the cached set for one user.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, userID)
}

// InvalidateRole drops the cached sets of every user actively holding
// the role. Individual delete failures are logged and do not stop the
// fan-out; the TTL bounds any staleness they leave behind.
func (s *Service) InvalidateRole(ctx context.Context, roleID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	userIDs, err := s.store.ActiveUserIDsForRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Error("invalidate user cache", slog.Any("error", err), slog.String("user_id", userID.String()))
		}
	}
	return nil
}
