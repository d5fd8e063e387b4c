package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cpu/acmecore/acme/problems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollReturnsOnDoneStatus(t *testing.T) {
	calls := 0
	refresh := func(ctx context.Context) (string, time.Time, bool, error) {
		calls++
		if calls < 3 {
			return "pending", time.Time{}, false, nil
		}
		return "valid", time.Time{}, false, nil
	}
	// Three refreshes sleep 3s and then 4.5s of default back-off, so the
	// timeout has to exceed 7.5s.
	status, err := Poll(context.Background(), 10*time.Second, refresh, func(s string) bool { return s == "valid" })
	require.NoError(t, err)
	assert.Equal(t, "valid", status)
	assert.Equal(t, 3, calls)
}

func TestPollPropagatesRefreshError(t *testing.T) {
	boom := errors.New("boom")
	refresh := func(ctx context.Context) (string, time.Time, bool, error) {
		return "pending", time.Time{}, false, boom
	}
	_, err := Poll(context.Background(), time.Second, refresh, func(string) bool { return false })
	assert.ErrorIs(t, err, boom)
}

func TestPollTimesOut(t *testing.T) {
	refresh := func(ctx context.Context) (string, time.Time, bool, error) {
		return "pending", time.Time{}, false, nil
	}
	status, err := Poll(context.Background(), 10*time.Millisecond, refresh, func(string) bool { return false })
	assert.Equal(t, "pending", status)
	require.Error(t, err)

	var pe *problems.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, problems.KindTimeout, pe.Kind)
	assert.Equal(t, "pending", pe.LastStatus)
}

func TestPollRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refresh := func(ctx context.Context) (string, time.Time, bool, error) {
		return "pending", time.Time{}, false, nil
	}
	_, err := Poll(ctx, time.Second, refresh, func(string) bool { return false })
	require.Error(t, err)

	var pe *problems.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, problems.KindInterrupted, pe.Kind)
}
