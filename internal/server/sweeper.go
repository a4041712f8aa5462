package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepLockKey = "frontdesk:sweep:lock"

// releaseLock deletes the sweep lock only while it still holds this run's token.
const releaseLock = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// Staler is the part of the lifecycle the sweeper drives.
type Staler interface {
	TimeoutStale(ctx context.Context, cutoff time.Duration) ([]models.HelpRequest, error)
}

// Locker is the slice of the redis client used for the sweep lock.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Sweeper periodically times out stale help requests. With a Locker only one
// instance sweeps per tick.
type Sweeper struct {
	Requests Staler
	Lock     Locker
	Interval time.Duration
	Cron     string
	Cutoff   time.Duration
	LockTTL  time.Duration
	Logger   *zap.Logger
	Metrics  *runtime.Metrics

	now func() time.Time
}

// Run sweeps until ctx is done. With Cron set the schedule is checked every Interval
// and a sweep runs when the expression is due; otherwise every Interval sweeps.
func (s *Sweeper) Run(ctx context.Context) error {
	logger := runtime.OrNop(s.Logger).Named("sweeper")
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	var expr *cronexpr.Expression
	if s.Cron != "" {
		var err error
		if expr, err = cronexpr.Parse(s.Cron); err != nil {
			return err
		}
		if interval > time.Minute {
			interval = time.Minute
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last *time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.clock()
			if expr != nil && !isDue(expr, last, now) {
				continue
			}
			last = &now
			if _, err := s.Sweep(ctx); err != nil {
				logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one timeout pass. It returns nil without sweeping when another
// instance holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) ([]models.HelpRequest, error) {
	logger := runtime.OrNop(s.Logger).Named("sweeper")
	if s.Lock != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		token := uuid.NewString()
		ok, err := s.Lock.SetNX(ctx, sweepLockKey, token, ttl).Result()
		if err != nil {
			// transitions are CAS-guarded, so a duplicate sweep only loses races
			logger.Warn("sweep lock unavailable, sweeping unlocked", zap.Error(err))
		} else if !ok {
			s.Metrics.IncSweep("skipped")
			return nil, nil
		} else {
			defer func() {
				if err := s.Lock.Eval(context.WithoutCancel(ctx), releaseLock, []string{sweepLockKey}, token).Err(); err != nil {
					logger.Warn("sweep lock release failed", zap.Error(err))
				}
			}()
		}
	}

	out, err := s.Requests.TimeoutStale(ctx, s.Cutoff)
	if err != nil {
		s.Metrics.IncSweep("failed")
		return out, err
	}
	s.Metrics.IncSweep("ok")
	if len(out) > 0 {
		logger.Info("sweep timed out requests", zap.Int("count", len(out)))
	}
	return out, nil
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// isDue reports whether expr has a firing time in (last, now]. The first check is always due.
func isDue(expr *cronexpr.Expression, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
