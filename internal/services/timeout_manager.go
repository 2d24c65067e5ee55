package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/litansh/TrendMaster-AI/internal/config"
)

// Operation classes with distinct timeout budgets.
const (
	OpModelFit     = "model_fit"
	OpMetricsFetch = "metrics_fetch"
	OpCacheFetch   = "cache_fetch"
	OpConfigApply  = "config_apply"
)

// TimeoutConfig defines timeout settings for the operation classes.
type TimeoutConfig struct {
	ModelFit     time.Duration
	MetricsFetch time.Duration
	CacheFetch   time.Duration
	ConfigApply  time.Duration
}

// DefaultTimeoutConfig returns the default per-class budgets.
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ModelFit:     30 * time.Second,
		MetricsFetch: 30 * time.Second,
		CacheFetch:   10 * time.Second,
		ConfigApply:  15 * time.Second,
	}
}

// TimeoutConfigFrom derives the per-class budgets from the loaded
// configuration, falling back to defaults for classes it does not cover.
func TimeoutConfigFrom(cfg *config.Config) *TimeoutConfig {
	tc := DefaultTimeoutConfig()
	if cfg.Analysis.ModelTimeout > 0 {
		tc.ModelFit = cfg.Analysis.ModelTimeout
	}
	if cfg.Prometheus.Timeout > 0 {
		tc.MetricsFetch = cfg.Prometheus.Timeout
		tc.CacheFetch = cfg.Prometheus.Timeout
	}
	return tc
}

// TimeoutManager runs operations under per-class deadlines and keeps the
// cancel functions of in-flight operations so a shutdown can stop them all.
type TimeoutManager struct {
	config         *TimeoutConfig
	logger         *logrus.Logger
	activeContexts map[string]context.CancelFunc
	mu             sync.RWMutex
	defaultTimeout time.Duration
}

// OperationContext wraps a context with timeout and cancellation.
type OperationContext struct {
	Ctx         context.Context
	Cancel      context.CancelFunc
	OperationID string
	StartTime   time.Time
	Timeout     time.Duration
}

func NewTimeoutManager(config *TimeoutConfig, logger *logrus.Logger) *TimeoutManager {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	return &TimeoutManager{
		config:         config,
		logger:         logger,
		activeContexts: make(map[string]context.CancelFunc),
		defaultTimeout: 30 * time.Second,
	}
}

// CreateOperationContext derives a deadline context for an operation and
// tracks its cancel function until CompleteOperation.
func (tm *TimeoutManager) CreateOperationContext(parent context.Context, operationType, operationID string) *OperationContext {
	timeout := tm.timeoutFor(operationType)
	ctx, cancel := context.WithTimeout(parent, timeout)

	tm.mu.Lock()
	tm.activeContexts[operationID] = cancel
	tm.mu.Unlock()

	return &OperationContext{
		Ctx:         ctx,
		Cancel:      cancel,
		OperationID: operationID,
		StartTime:   time.Now(),
		Timeout:     timeout,
	}
}

func (tm *TimeoutManager) timeoutFor(operationType string) time.Duration {
	switch operationType {
	case OpModelFit:
		return tm.config.ModelFit
	case OpMetricsFetch:
		return tm.config.MetricsFetch
	case OpCacheFetch:
		return tm.config.CacheFetch
	case OpConfigApply:
		return tm.config.ConfigApply
	default:
		return tm.defaultTimeout
	}
}

// CompleteOperation releases a tracked operation.
func (tm *TimeoutManager) CompleteOperation(operationID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if cancel, exists := tm.activeContexts[operationID]; exists {
		cancel()
		delete(tm.activeContexts, operationID)
	}
}

// CancelAllOperations cancels every in-flight operation.
func (tm *TimeoutManager) CancelAllOperations() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	for operationID, cancel := range tm.activeContexts {
		cancel()
		tm.logger.WithField("operation_id", operationID).Info("Operation cancelled during shutdown")
	}
	tm.activeContexts = make(map[string]context.CancelFunc)
}

// ActiveOperationCount returns the number of tracked operations.
func (tm *TimeoutManager) ActiveOperationCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.activeContexts)
}

// ExecuteWithTimeout runs the operation under its class deadline. The
// operation runs in its own goroutine; on deadline the call returns
// context.DeadlineExceeded while the operation observes ctx cancellation.
func (tm *TimeoutManager) ExecuteWithTimeout(
	parent context.Context,
	operationType string,
	operationID string,
	operation func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	opCtx := tm.CreateOperationContext(parent, operationType, operationID)
	defer tm.CompleteOperation(operationID)

	resultChan := make(chan struct {
		data interface{}
		err  error
	}, 1)

	go func() {
		data, err := operation(opCtx.Ctx)
		resultChan <- struct {
			data interface{}
			err  error
		}{data: data, err: err}
	}()

	select {
	case result := <-resultChan:
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"operation_id":   operationID,
			"duration":       time.Since(opCtx.StartTime),
			"success":        result.err == nil,
		}).Debug("Operation completed")
		return result.data, result.err

	case <-opCtx.Ctx.Done():
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"operation_id":   operationID,
			"duration":       time.Since(opCtx.StartTime),
			"timeout":        opCtx.Timeout,
		}).Warn("Operation timed out")
		return nil, opCtx.Ctx.Err()
	}
}

// ExecuteWithTimeoutAndFallback runs the operation and, when it times out or
// errors, runs the fallback instead.
func (tm *TimeoutManager) ExecuteWithTimeoutAndFallback(
	parent context.Context,
	operationType string,
	operationID string,
	operation func(ctx context.Context) (interface{}, error),
	fallback func() (interface{}, error),
) (interface{}, error) {
	result, err := tm.ExecuteWithTimeout(parent, operationType, operationID, operation)
	if err != nil && fallback != nil {
		tm.logger.WithFields(logrus.Fields{
			"operation_type": operationType,
			"operation_id":   operationID,
			"error":          err.Error(),
		}).Info("Operation failed, using fallback")
		return fallback()
	}
	return result, err
}

// IsTimeout reports whether an error came from a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
