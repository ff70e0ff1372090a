package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/dispatcher"
	"github.com/smallbiznis/paycore/internal/events"
	"github.com/smallbiznis/paycore/internal/locker"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config   config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Locker   locker.GlobalLocker
	Registry *plugin.Registry
	Dispatch *dispatcher.Dispatcher
	Repo     domain.Repository
	Outbox   *events.Outbox             `optional:"true"`
	Metrics  *obsmetrics.PaymentMetrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	locker   locker.GlobalLocker
	registry *plugin.Registry
	dispatch *dispatcher.Dispatcher
	repo     domain.Repository
	outbox   *events.Outbox
	metrics  *obsmetrics.PaymentMetrics

	machines map[domain.TransactionType]*automaton.StateMachine
}

func New(p Params) (domain.Service, error) {
	machines, err := newMachines()
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      p.Config,
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		locker:   p.Locker,
		registry: p.Registry,
		dispatch: p.Dispatch,
		repo:     p.Repo,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		machines: machines,
	}, nil
}

func (s *Service) Authorize(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeAuthorize, req, false)
}

func (s *Service) Capture(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeCapture, req, false)
}

func (s *Service) Purchase(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypePurchase, req, false)
}

func (s *Service) Refund(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeRefund, req, false)
}

func (s *Service) Credit(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeCredit, req, false)
}

func (s *Service) Void(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeVoid, req, false)
}

func (s *Service) Chargeback(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, domain.TransactionTypeChargeback, req, false)
}

// CompletePending resolves a transaction previously recorded PENDING.
// The transaction type is taken from the pending row, not the request.
func (s *Service) CompletePending(ctx context.Context, req domain.OperationRequest) (*domain.OperationResponse, error) {
	return s.run(ctx, "", req, true)
}

func (s *Service) GetPayment(ctx context.Context, paymentID snowflake.ID) (*domain.Payment, []*domain.PaymentTransaction, error) {
	payment, err := s.repo.FindPayment(ctx, s.db, paymentID)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load payment", err)
	}
	if payment == nil {
		return nil, nil, domain.ErrNoSuchPayment
	}
	txns, err := s.repo.FindTransactionsForPayment(ctx, s.db, payment.ID)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load transactions", err)
	}
	return payment, txns, nil
}

func (s *Service) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*domain.Payment, []*domain.PaymentTransaction, error) {
	payment, err := s.repo.FindPaymentByExternalKey(ctx, s.db, externalKey)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load payment", err)
	}
	if payment == nil {
		return nil, nil, domain.ErrNoSuchPayment
	}
	txns, err := s.repo.FindTransactionsForPayment(ctx, s.db, payment.ID)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrorKindInternal, domain.ErrInternal.Code, "load transactions", err)
	}
	return payment, txns, nil
}
