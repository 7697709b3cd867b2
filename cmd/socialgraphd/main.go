// Command socialgraphd wires the social graph core to its production
// adapters: MongoDB for the relationship stores, Redis for the version
// registry, and a leader-gated cron sweep for expired requests. It
// exists to give the dependency graph somewhere to run; it exposes no
// transport of its own (the spec's Non-goals exclude that).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	social "github.com/socialgraph/core"
	cronscheduler "github.com/socialgraph/core/scheduler/cron"

	"github.com/socialgraph/core/adapters/mongostore"
	"github.com/socialgraph/core/adapters/redisstore"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("component", "socialgraphd").Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mongoURI := envOr("SOCIALGRAPH_MONGO_URI", "mongodb://localhost:27017")
	mongoDB := envOr("SOCIALGRAPH_MONGO_DB", "socialgraph")
	redisAddr := envOr("SOCIALGRAPH_REDIS_ADDR", "localhost:6379")

	mongoAdapter, err := mongostore.NewAdapter(ctx, mongoURI, mongoDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to mongodb")
	}
	defer mongoAdapter.Close(ctx)

	redisAdapter, err := redisstore.NewAdapter(redisAddr, "", 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to redis")
	}
	defer redisAdapter.Close()

	requests := mongoAdapter.NewFriendRequestStore()
	groups := mongoAdapter.NewRelationshipGroupStore()
	members := mongoAdapter.NewRelationshipGroupMemberStore()
	relationships := mongoAdapter.NewRelationshipStore()
	versions := redisAdapter.NewVersionRegistry()
	ids := &processLocalIDGenerator{}

	cfgStore := social.NewConfigStore(social.NewConfig(
		social.WithCronCleanup(true, "0 0 3 * * *"),
	))

	relationshipProvider := func() social.RelationshipStore { return relationships }

	groupSvc := social.NewRelationshipGroupService(groups, members, relationshipProvider, cfgStore, versions, logger)
	requestSvc := social.NewFriendRequestService(requests, ids, versions, cfgStore, relationshipProvider, logger)

	autoBlock := social.NewAutoBlockManager(cfgStore.Load().AutoBlock, func(id string, duration time.Duration) {
		logger.Warn().Str("clientId", id).Dur("duration", duration).Msg("client auto-blocked")
	})
	go evictExpiredAutoBlocksPeriodically(ctx, autoBlock)

	scheduler := cronscheduler.New(func() bool { return true }, logger)
	scheduler.Start()
	defer scheduler.Stop(ctx)

	cfg := cfgStore.Load()
	if cfg.DeleteExpiredRequestsWhenCronTriggered {
		err := scheduler.Reschedule("expired-friend-requests", cfg.ExpiredFriendRequestsCleanupCron, func(jobCtx context.Context) {
			requestSvc.DeleteExpiredRequestsWhenCronTriggered(jobCtx)
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("schedule expired friend request cleanup")
		}
	}

	_ = groupSvc // nothing in this binary calls groupSvc; the blank assignment marks where a transport layer would take it

	logger.Info().Msg("socialgraphd wiring ready")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

func evictExpiredAutoBlocksPeriodically(ctx context.Context, mgr *social.AutoBlockManager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.EvictExpired()
		}
	}
}

// processLocalIDGenerator is a placeholder IDGenerator for this binary;
// a real deployment swaps this for a shared external ID source (§6)
// before running more than one instance.
type processLocalIDGenerator struct{}

func (processLocalIDGenerator) NextLargeGapID(ctx context.Context, serviceType string) (int64, error) {
	return time.Now().UnixNano(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
