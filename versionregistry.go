package social

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// VersionRegistry is the Version Registry (C1): four independently
// advancing per-user timestamp streams used by clients for incremental
// sync. Bump is best-effort from the caller's point of view — see
// bumpVersionBestEffort — but the interface itself can fail; it is the
// caller in this package that decides to swallow the error.
type VersionRegistry interface {
	Bump(ctx context.Context, owner UserID, stream VersionStream, at time.Time) error
	Get(ctx context.Context, owner UserID, stream VersionStream) (time.Time, error)
}

// bumpVersionBestEffort implements the §9 "best-effort version bumps"
// design note: failure is logged and swallowed, never propagated to the
// caller of the owning mutation.
func bumpVersionBestEffort(ctx context.Context, reg VersionRegistry, log zerolog.Logger, owner UserID, stream VersionStream, at time.Time) {
	if reg == nil {
		return
	}
	if err := reg.Bump(ctx, owner, stream, at); err != nil {
		log.Warn().Err(err).Int64("owner", int64(owner)).Str("stream", string(stream)).Msg("version bump failed")
	}
}
