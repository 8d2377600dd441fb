package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
)

type fakeReclaimer struct {
	calls   int
	result  *container.CleanupResult
	err     error
	maxAges []int
}

func (f *fakeReclaimer) CleanupExpired(_ context.Context, maxAgeDays int, _ string) (*container.CleanupResult, error) {
	f.calls++
	f.maxAges = append(f.maxAges, maxAgeDays)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		ContainerTTLDays:  7,
		IdempotencyWindow: time.Hour,
		CleanupInterval:   10 * time.Millisecond,
	}
}

func TestService_RunOnceInvokesReclaimerWithConfiguredTTL(t *testing.T) {
	reclaimer := &fakeReclaimer{result: &container.CleanupResult{}}
	svc := NewService(testConfig(), reclaimer, nil)

	svc.runOnce(context.Background())

	require.Equal(t, 1, reclaimer.calls)
	assert.Equal(t, []int{7}, reclaimer.maxAges)
}

func TestService_RunOnceToleratesReclaimerError(t *testing.T) {
	reclaimer := &fakeReclaimer{err: assert.AnError}
	svc := NewService(testConfig(), reclaimer, nil)

	require.NotPanics(t, func() { svc.runOnce(context.Background()) })
}

func TestService_StartStopRunsAtLeastOnce(t *testing.T) {
	reclaimer := &fakeReclaimer{result: &container.CleanupResult{}}
	svc := NewService(testConfig(), reclaimer, nil)

	svc.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()

	assert.GreaterOrEqual(t, reclaimer.calls, 1)
}
