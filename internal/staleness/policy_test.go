package staleness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/github-graph-crawler/cfg"
)

func testPolicy(t *testing.T) Policy {
	t.Helper()
	loader, _ := cfg.NewMockLoader()
	config, err := loader.Load()
	require.NoError(t, err)
	return NewPolicy(config.Crawler)
}

func ts(t time.Time) *time.Time { return &t }

func TestNeverCrawledIsAlwaysDue(t *testing.T) {
	p := testPolicy(t)
	now := time.Now()

	assert.True(t, p.UserProfileDue(nil, now))
	assert.True(t, p.UserReposDue(nil, now))
	assert.True(t, p.RepoDue(nil, now))
	assert.True(t, p.SweepDue(nil, now))
}

func TestFreshEntityIsNotDue(t *testing.T) {
	p := testPolicy(t)
	now := time.Now()
	yesterday := ts(now.Add(-24 * time.Hour))

	assert.False(t, p.UserProfileDue(yesterday, now)) // 7 day cadence
	assert.False(t, p.RepoDue(yesterday, now))        // 7 day cadence
	assert.False(t, p.SweepDue(yesterday, now))       // 30 day cadence
}

func TestStaleEntityIsDue(t *testing.T) {
	p := testPolicy(t)
	now := time.Now()

	assert.True(t, p.UserProfileDue(ts(now.Add(-8*24*time.Hour)), now))
	assert.True(t, p.RepoDue(ts(now.Add(-7*24*time.Hour)), now)) // boundary counts as due
	assert.True(t, p.SweepDue(ts(now.Add(-31*24*time.Hour)), now))
}

func TestCadencesAreIndependent(t *testing.T) {
	p := testPolicy(t)
	now := time.Now()
	twoDaysAgo := ts(now.Add(-2 * 24 * time.Hour))

	// Profile crawled two days ago: profile fresh, repo list stale (1 day
	// cadence), sweep fresh.
	assert.False(t, p.UserProfileDue(twoDaysAgo, now))
	assert.True(t, p.UserReposDue(twoDaysAgo, now))
	assert.False(t, p.SweepDue(twoDaysAgo, now))
}
