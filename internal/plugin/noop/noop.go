// Package noop provides a processor plugin that approves everything by
// default. Behaviors can be scripted per call, which makes it the
// default plugin for development and the workhorse of the test suite.
package noop

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/plugin"
)

const PluginName = "noop"

// Behavior overrides the outcome of the next call(s), consumed FIFO.
type Behavior struct {
	Status plugin.Status
	Err    error
	Sleep  time.Duration
}

// Plugin is a scriptable in-process PaymentPluginApi.
type Plugin struct {
	mu      sync.Mutex
	queued  []Behavior
	calls   []plugin.TransactionRequest
	results map[snowflake.ID][]*plugin.TransactionInfo

	// OnCall, when set, runs synchronously at the start of every
	// transaction call with the request about to be processed.
	OnCall func(req plugin.TransactionRequest)
}

func New() *Plugin {
	return &Plugin{results: make(map[snowflake.ID][]*plugin.TransactionInfo)}
}

func (p *Plugin) Name() string { return PluginName }

// EnqueueBehavior scripts the outcome of an upcoming call.
func (p *Plugin) EnqueueBehavior(b Behavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, b)
}

// Calls returns a copy of all requests seen so far.
func (p *Plugin) Calls() []plugin.TransactionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]plugin.TransactionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// SetPaymentInfo overrides the reconciliation view for a payment.
func (p *Plugin) SetPaymentInfo(paymentID snowflake.ID, infos []*plugin.TransactionInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[paymentID] = infos
}

func (p *Plugin) next(req plugin.TransactionRequest) (Behavior, func(req plugin.TransactionRequest)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	b := Behavior{Status: plugin.StatusProcessed}
	if len(p.queued) > 0 {
		b = p.queued[0]
		p.queued = p.queued[1:]
	}
	return b, p.OnCall
}

func (p *Plugin) process(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	b, onCall := p.next(req)
	if onCall != nil {
		onCall(req)
	}
	if b.Sleep > 0 {
		select {
		case <-time.After(b.Sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.Err != nil {
		return nil, b.Err
	}

	info := &plugin.TransactionInfo{
		PaymentID:        req.PaymentID,
		TransactionID:    req.TransactionID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Status:           b.Status,
		FirstReferenceID: "noop-" + req.TransactionID.String(),
		CreatedAt:        time.Now().UTC(),
	}
	p.mu.Lock()
	p.results[req.PaymentID] = append(p.results[req.PaymentID], info)
	p.mu.Unlock()
	return info, nil
}

func (p *Plugin) Authorize(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Capture(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Purchase(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Refund(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Credit(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Void(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) Chargeback(ctx context.Context, req plugin.TransactionRequest) (*plugin.TransactionInfo, error) {
	return p.process(ctx, req)
}

func (p *Plugin) GetPaymentInfo(ctx context.Context, accountID snowflake.ID, paymentID snowflake.ID, properties []plugin.Property) ([]*plugin.TransactionInfo, error) {
	_ = ctx
	_ = accountID
	_ = properties
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := p.results[paymentID]
	out := make([]*plugin.TransactionInfo, len(infos))
	copy(out, infos)
	return out, nil
}
