package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
	"go.uber.org/zap"
)

func (s *Server) RegisterPaymentRoutes() {
	v1 := s.engine.Group("/v1")

	payments := v1.Group("/payments")
	payments.POST("/authorize", s.operationHandler(s.paymentSvc.Authorize))
	payments.POST("/purchase", s.operationHandler(s.paymentSvc.Purchase))
	payments.POST("/credit", s.operationHandler(s.paymentSvc.Credit))

	payments.POST("/:id/capture", s.followUpHandler(s.paymentSvc.Capture))
	payments.POST("/:id/refund", s.followUpHandler(s.paymentSvc.Refund))
	payments.POST("/:id/void", s.followUpHandler(s.paymentSvc.Void))
	payments.POST("/:id/chargeback", s.followUpHandler(s.paymentSvc.Chargeback))
	payments.POST("/:id/complete", s.followUpHandler(s.paymentSvc.CompletePending))

	payments.GET("/:id", s.getPayment)
	payments.GET("", s.getPaymentByExternalKey)
}

type operationRequest struct {
	AccountID              string            `json:"account_id" binding:"required"`
	PaymentMethodID        string            `json:"payment_method_id"`
	PaymentExternalKey     string            `json:"payment_external_key"`
	TransactionExternalKey string            `json:"transaction_external_key"`
	Amount                 int64             `json:"amount"`
	Currency               string            `json:"currency"`
	Properties             []plugin.Property `json:"properties"`
}

type transactionResponse struct {
	ID                string    `json:"id"`
	ExternalKey       string    `json:"external_key"`
	Type              string    `json:"transaction_type"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ProcessedAmount   int64     `json:"processed_amount"`
	ProcessedCurrency string    `json:"processed_currency,omitempty"`
	Status            string    `json:"status"`
	EffectiveDate     time.Time `json:"effective_date"`
	GatewayErrorCode  string    `json:"gateway_error_code,omitempty"`
	GatewayErrorMsg   string    `json:"gateway_error_msg,omitempty"`
}

type paymentResponse struct {
	ID                   string                `json:"id"`
	AccountID            string                `json:"account_id"`
	ExternalKey          string                `json:"external_key"`
	Currency             string                `json:"currency"`
	AuthorizedAmount     int64                 `json:"authorized_amount"`
	CapturedAmount       int64                 `json:"captured_amount"`
	PurchasedAmount      int64                 `json:"purchased_amount"`
	RefundedAmount       int64                 `json:"refunded_amount"`
	CreditedAmount       int64                 `json:"credited_amount"`
	ChargedBackAmount    int64                 `json:"charged_back_amount"`
	StateName            string                `json:"state_name"`
	LastSuccessStateName string                `json:"last_success_state_name,omitempty"`
	Transactions         []transactionResponse `json:"transactions,omitempty"`
}

type operationFunc func(ctx context.Context, req paymentdomain.OperationRequest) (*paymentdomain.OperationResponse, error)

func (s *Server) operationHandler(op operationFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := s.bindOperationRequest(c)
		if !ok {
			return
		}
		resp, err := op(c.Request.Context(), req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toPaymentResponse(resp.Payment, []*paymentdomain.PaymentTransaction{resp.Transaction}))
	}
}

func (s *Server) followUpHandler(op operationFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID, err := snowflake.ParseString(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
			return
		}
		req, ok := s.bindOperationRequest(c)
		if !ok {
			return
		}
		req.PaymentID = paymentID
		resp, err := op(c.Request.Context(), req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toPaymentResponse(resp.Payment, []*paymentdomain.PaymentTransaction{resp.Transaction}))
	}
}

func (s *Server) bindOperationRequest(c *gin.Context) (paymentdomain.OperationRequest, bool) {
	var body operationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return paymentdomain.OperationRequest{}, false
	}
	accountID, err := snowflake.ParseString(body.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return paymentdomain.OperationRequest{}, false
	}
	var paymentMethodID snowflake.ID
	if body.PaymentMethodID != "" {
		paymentMethodID, err = snowflake.ParseString(body.PaymentMethodID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment method id"})
			return paymentdomain.OperationRequest{}, false
		}
	}
	return paymentdomain.OperationRequest{
		AccountID:              accountID,
		PaymentMethodID:        paymentMethodID,
		PaymentExternalKey:     body.PaymentExternalKey,
		TransactionExternalKey: body.TransactionExternalKey,
		Amount:                 body.Amount,
		Currency:               body.Currency,
		Properties:             body.Properties,
		CallOrigin:             paymentdomain.CallOriginAPI,
	}, true
}

func (s *Server) getPayment(c *gin.Context) {
	paymentID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	payment, txns, err := s.paymentSvc.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment, txns))
}

func (s *Server) getPaymentByExternalKey(c *gin.Context) {
	key := c.Query("external_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_key is required"})
		return
	}
	payment, txns, err := s.paymentSvc.GetPaymentByExternalKey(c.Request.Context(), key)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment, txns))
}

func (s *Server) writeError(c *gin.Context, err error) {
	var domErr *paymentdomain.Error
	if !errors.As(err, &domErr) {
		s.log.Error("unclassified payment error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch domErr.Kind {
	case paymentdomain.ErrorKindCaller:
		status = http.StatusBadRequest
		if domErr.Code == paymentdomain.ErrActiveTransactionKeyExists.Code {
			status = http.StatusConflict
		}
		if domErr.Code == paymentdomain.ErrNoSuchPayment.Code {
			status = http.StatusNotFound
		}
	case paymentdomain.ErrorKindLockTimeout:
		status = http.StatusConflict
	case paymentdomain.ErrorKindPluginFailure:
		status = http.StatusPaymentRequired
	case paymentdomain.ErrorKindUnknownOutcome:
		status = http.StatusGatewayTimeout
	case paymentdomain.ErrorKindInvalidOperation:
		status = http.StatusConflict
	case paymentdomain.ErrorKindInternal:
		status = http.StatusInternalServerError
		s.log.Error("payment operation internal error", zap.Error(domErr))
	}

	c.JSON(status, gin.H{
		"error": domErr.Message,
		"code":  domErr.Code,
		"kind":  string(domErr.Kind),
	})
}

func toPaymentResponse(payment *paymentdomain.Payment, txns []*paymentdomain.PaymentTransaction) paymentResponse {
	resp := paymentResponse{
		ID:                   payment.ID.String(),
		AccountID:            payment.AccountID.String(),
		ExternalKey:          payment.ExternalKey,
		Currency:             payment.Currency,
		AuthorizedAmount:     payment.AuthorizedAmount,
		CapturedAmount:       payment.CapturedAmount,
		PurchasedAmount:      payment.PurchasedAmount,
		RefundedAmount:       payment.RefundedAmount,
		CreditedAmount:       payment.CreditedAmount,
		ChargedBackAmount:    payment.ChargedBackAmount,
		StateName:            payment.StateName,
		LastSuccessStateName: payment.LastSuccessStateName,
	}
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:                txn.ID.String(),
			ExternalKey:       txn.ExternalKey,
			Type:              string(txn.Type),
			Amount:            txn.Amount,
			Currency:          txn.Currency,
			ProcessedAmount:   txn.ProcessedAmount,
			ProcessedCurrency: txn.ProcessedCurrency,
			Status:            string(txn.Status),
			EffectiveDate:     txn.EffectiveDate,
			GatewayErrorCode:  txn.GatewayErrorCode,
			GatewayErrorMsg:   txn.GatewayErrorMsg,
		})
	}
	return resp
}
