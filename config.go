package social

import (
	"sync/atomic"
	"time"
)

// BlockLevel is one rung of the auto-block escalation ladder.
type BlockLevel struct {
	BlockDuration                  time.Duration
	GoNextLevelTriggerTimes        int
	ReduceOneTriggerTimeInterval   time.Duration
}

// Config is a process-wide, hot-reloadable snapshot. Callers never build
// one by hand in production; NewConfig applies defaults and options, and
// ConfigStore.Swap replaces the snapshot wholesale on reload.
type Config struct {
	MaxContentLength        int
	MaxResponseReasonLength int

	AllowSendRequestAfterDeclinedOrIgnoredOrExpired bool
	AllowRecallPendingFriendRequestBySender         bool

	DeleteExpiredRequestsWhenCronTriggered bool
	ExpiredFriendRequestsCleanupCron        string

	FriendRequestExpireAfter time.Duration

	// RemoveFromLastGroupDeletesRelationship resolves the §9 open
	// question: whether removing a user from their last non-default
	// group should delete the relationship itself. Default false keeps
	// the documented current behaviour (move to DefaultIndex).
	RemoveFromLastGroupDeletesRelationship bool

	AutoBlock AutoBlockConfig
}

// AutoBlockConfig configures the Auto-Block Manager (C5).
type AutoBlockConfig struct {
	Enabled           bool
	BlockTriggerTimes int
	Levels            []BlockLevel
}

// ConfigOption mutates a Config under construction. Mirrors the
// functional-options idiom used throughout this module's services.
type ConfigOption func(*Config)

func WithMaxContentLength(n int) ConfigOption {
	return func(c *Config) { c.MaxContentLength = n }
}

func WithMaxResponseReasonLength(n int) ConfigOption {
	return func(c *Config) { c.MaxResponseReasonLength = n }
}

func WithAllowSendAfterDeclinedOrIgnoredOrExpired(allow bool) ConfigOption {
	return func(c *Config) { c.AllowSendRequestAfterDeclinedOrIgnoredOrExpired = allow }
}

func WithAllowRecallPendingBySender(allow bool) ConfigOption {
	return func(c *Config) { c.AllowRecallPendingFriendRequestBySender = allow }
}

func WithExpireAfter(d time.Duration) ConfigOption {
	return func(c *Config) { c.FriendRequestExpireAfter = d }
}

func WithCronCleanup(enabled bool, cronExpr string) ConfigOption {
	return func(c *Config) {
		c.DeleteExpiredRequestsWhenCronTriggered = enabled
		c.ExpiredFriendRequestsCleanupCron = cronExpr
	}
}

func WithRemoveFromLastGroupDeletesRelationship(v bool) ConfigOption {
	return func(c *Config) { c.RemoveFromLastGroupDeletesRelationship = v }
}

func WithAutoBlock(cfg AutoBlockConfig) ConfigOption {
	return func(c *Config) { c.AutoBlock = cfg }
}

// defaultConfig mirrors a conservative production default: bounded
// content, projection enabled, resend-after-terminal disallowed, recall
// allowed, cron sweep off (expiry is a projection, the cron is just
// housekeeping).
func defaultConfig() Config {
	return Config{
		MaxContentLength:        500,
		MaxResponseReasonLength: 200,
		AllowRecallPendingFriendRequestBySender: true,
		FriendRequestExpireAfter:                30 * 24 * time.Hour,
		AutoBlock: AutoBlockConfig{
			Enabled:           true,
			BlockTriggerTimes: 5,
			Levels: []BlockLevel{
				{BlockDuration: 60 * time.Second, GoNextLevelTriggerTimes: 3},
				{BlockDuration: 5 * time.Minute, GoNextLevelTriggerTimes: 3},
			},
		},
	}
}

// NewConfig builds a Config starting from defaultConfig and applying opts
// in order.
func NewConfig(opts ...ConfigOption) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ConfigStore holds a Config behind a single atomic pointer so that every
// reader does one volatile load, matching §5's "callers always read via a
// single volatile load" requirement for the configuration snapshot.
type ConfigStore struct {
	ptr atomic.Pointer[Config]
}

// NewConfigStore seeds the store with an initial snapshot.
func NewConfigStore(initial Config) *ConfigStore {
	s := &ConfigStore{}
	s.ptr.Store(&initial)
	return s
}

// Load returns the current snapshot. The returned Config is a value copy
// of whatever was last Swapped in; callers must not mutate fields of a
// Config obtained this way expecting it to propagate.
func (s *ConfigStore) Load() Config {
	return *s.ptr.Load()
}

// Swap atomically replaces the snapshot, e.g. on a property-reload
// notification.
func (s *ConfigStore) Swap(next Config) {
	s.ptr.Store(&next)
}
