package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWithTimeoutSuccess(t *testing.T) {
	tm := NewTimeoutManager(nil, testLogger())

	result, err := tm.ExecuteWithTimeout(context.Background(), OpModelFit, "op-1",
		func(ctx context.Context) (interface{}, error) {
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 0, tm.ActiveOperationCount())
}

func TestExecuteWithTimeoutDeadline(t *testing.T) {
	tm := NewTimeoutManager(&TimeoutConfig{
		ModelFit:     20 * time.Millisecond,
		MetricsFetch: time.Second,
		CacheFetch:   time.Second,
		ConfigApply:  time.Second,
	}, testLogger())

	_, err := tm.ExecuteWithTimeout(context.Background(), OpModelFit, "op-slow",
		func(ctx context.Context) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestExecuteWithTimeoutAndFallback(t *testing.T) {
	tm := NewTimeoutManager(&TimeoutConfig{
		ModelFit:     20 * time.Millisecond,
		MetricsFetch: time.Second,
		CacheFetch:   time.Second,
		ConfigApply:  time.Second,
	}, testLogger())

	result, err := tm.ExecuteWithTimeoutAndFallback(context.Background(), OpModelFit, "op-fb",
		func(ctx context.Context) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func() (interface{}, error) {
			return "fallback", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestExecuteWithTimeoutAndFallbackOnError(t *testing.T) {
	tm := NewTimeoutManager(nil, testLogger())

	result, err := tm.ExecuteWithTimeoutAndFallback(context.Background(), OpMetricsFetch, "op-err",
		func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("upstream down")
		},
		func() (interface{}, error) {
			return "fallback", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestCancelAllOperations(t *testing.T) {
	tm := NewTimeoutManager(nil, testLogger())

	opCtx := tm.CreateOperationContext(context.Background(), OpMetricsFetch, "op-live")
	assert.Equal(t, 1, tm.ActiveOperationCount())

	tm.CancelAllOperations()
	assert.Equal(t, 0, tm.ActiveOperationCount())

	select {
	case <-opCtx.Ctx.Done():
	default:
		t.Fatal("context should be cancelled")
	}
}
