// Package dispatcher executes plugin calls on a bounded worker pool
// with a hard wall-clock timeout. A timed-out call is abandoned, not
// interrupted: the remote processor may still complete it, so the
// outcome is reported as undefined and left to reconciliation.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/paycore/internal/plugin"
	"go.uber.org/zap"
)

// ErrDispatchTimeout is returned when the plugin call did not complete
// within the configured timeout. The remote outcome is unknown.
var ErrDispatchTimeout = errors.New("plugin_dispatch_timeout")

// Work is one plugin call wrapped for dispatch.
type Work func(ctx context.Context) (*plugin.TransactionInfo, error)

type Dispatcher struct {
	pool    *Pool
	timeout time.Duration
	log     *zap.Logger
}

func New(pool *Pool, timeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pool:    pool,
		timeout: timeout,
		log:     log.Named("payment.dispatcher"),
	}
}

type workResult struct {
	info *plugin.TransactionInfo
	err  error
}

// Dispatch runs work on the pool and waits up to the timeout.
//
// Outcomes:
//   - plugin returned an info: (info, nil), whatever the plugin status;
//   - plugin returned a business error (*plugin.Error): (nil, that error),
//     the call is final and is not retried here;
//   - timeout, panic or any other infrastructure failure: a synthesized
//     info with StatusUndefined plus the error, because the remote
//     outcome cannot be known and must not be reported as success or
//     failure.
func (d *Dispatcher) Dispatch(ctx context.Context, work Work) (*plugin.TransactionInfo, error) {
	results := make(chan workResult, 1)

	task := func() {
		defer func() {
			if r := recover(); r != nil {
				results <- workResult{err: fmt.Errorf("plugin panic: %v", r)}
			}
		}()
		info, err := work(ctx)
		results <- workResult{info: info, err: err}
	}

	if err := d.pool.Submit(task); err != nil {
		d.log.Warn("plugin dispatch rejected", zap.Error(err))
		return undefinedInfo(), err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			var pluginErr *plugin.Error
			if errors.As(res.err, &pluginErr) {
				return nil, res.err
			}
			d.log.Warn("plugin call failed with non-business error", zap.Error(res.err))
			return undefinedInfo(), res.err
		}
		if res.info == nil {
			// A plugin returning neither info nor error is ambiguous.
			d.log.Warn("plugin returned no result")
			return undefinedInfo(), nil
		}
		return res.info, nil
	case <-timer.C:
		d.log.Warn("plugin call timed out", zap.Duration("timeout", d.timeout))
		return undefinedInfo(), ErrDispatchTimeout
	case <-ctx.Done():
		d.log.Warn("plugin call abandoned", zap.Error(ctx.Err()))
		return undefinedInfo(), ctx.Err()
	}
}

func undefinedInfo() *plugin.TransactionInfo {
	return &plugin.TransactionInfo{
		Status:    plugin.StatusUndefined,
		CreatedAt: time.Now().UTC(),
	}
}
