package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProjectStatus_PendingWithinWindowPassesThrough(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := FriendRequest{Status: StatusPending, CreationDate: now.Add(-time.Hour)}
	status, responseDate := ProjectStatus(req, 24*time.Hour, now)
	require.Equal(t, StatusPending, status)
	require.Nil(t, responseDate)
}

func TestProjectStatus_PendingPastWindowProjectsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	creation := now.Add(-48 * time.Hour)
	req := FriendRequest{Status: StatusPending, CreationDate: creation}
	status, responseDate := ProjectStatus(req, 24*time.Hour, now)
	require.Equal(t, StatusExpired, status)
	require.NotNil(t, responseDate)
	require.True(t, responseDate.Equal(creation.Add(24*time.Hour)))
}

func TestProjectStatus_TerminalStatusNeverExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := FriendRequest{Status: StatusAccepted, CreationDate: now.Add(-48 * time.Hour)}
	status, _ := ProjectStatus(req, 24*time.Hour, now)
	require.Equal(t, StatusAccepted, status)
}

func TestProjectStatus_DisabledWhenExpireAfterNonPositive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := FriendRequest{Status: StatusPending, CreationDate: now.Add(-365 * 24 * time.Hour)}
	status, _ := ProjectStatus(req, 0, now)
	require.Equal(t, StatusPending, status)
}

func TestProjectStatus_NeverMutatesInput(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := FriendRequest{Status: StatusPending, CreationDate: now.Add(-48 * time.Hour)}
	original := req
	_, _ = ProjectStatus(req, 24*time.Hour, now)
	require.Equal(t, original, req)
}

func TestDefaultResponseDate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	creation := now.Add(-time.Hour)

	require.Nil(t, defaultResponseDate(StatusPending, creation, 24*time.Hour, now))

	expired := defaultResponseDate(StatusExpired, creation, 24*time.Hour, now)
	require.NotNil(t, expired)
	require.True(t, expired.Equal(creation.Add(24*time.Hour)))

	declined := defaultResponseDate(StatusDeclined, creation, 24*time.Hour, now)
	require.NotNil(t, declined)
	require.True(t, declined.Equal(now))
}
