package session

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kasira/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const memorySweepInterval = time.Minute

var Module = fx.Module("auth.session",
	fx.Provide(NewManager),
	fx.Provide(NewStore),
)

type StoreParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Manager   *Manager
	Clock     clock.Clock
	Redis     *redis.Client `optional:"true"`
	Log       *zap.Logger
}

// NewStore picks Redis when a client is available and falls back to memory.
func NewStore(p StoreParams) Store {
	if p.Redis != nil {
		return NewRedisStore(p.Redis, p.Manager.TTL())
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Warn("session store is in-memory; sessions are lost on restart")

	store := NewMemoryStore(p.Clock, p.Manager.TTL())
	if p.Lifecycle != nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go runSweeper(ctx, store, log)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}
	return store
}

func runSweeper(ctx context.Context, store *MemoryStore, log *zap.Logger) {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Sweep(); removed > 0 {
				log.Debug("expired sessions evicted", zap.Int("count", removed))
			}
		}
	}
}
