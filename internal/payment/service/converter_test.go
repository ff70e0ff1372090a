package service

import (
	"testing"

	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/plugin"
)

func TestResultForPluginStatus(t *testing.T) {
	cases := []struct {
		status plugin.Status
		want   automaton.OperationResult
	}{
		{plugin.StatusProcessed, automaton.OperationResultSuccess},
		{plugin.StatusPending, automaton.OperationResultPending},
		{plugin.StatusError, automaton.OperationResultFailure},
		{plugin.StatusCanceled, automaton.OperationResultFailure},
		{plugin.StatusUndefined, automaton.OperationResultException},
		{plugin.Status(""), automaton.OperationResultException},
	}
	for _, tc := range cases {
		if got := resultForPluginStatus(tc.status); got != tc.want {
			t.Errorf("resultForPluginStatus(%s) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestStatusForPluginInfo(t *testing.T) {
	cases := []struct {
		info *plugin.TransactionInfo
		want domain.TransactionStatus
	}{
		{nil, domain.TransactionStatusUnknown},
		{&plugin.TransactionInfo{Status: plugin.StatusProcessed}, domain.TransactionStatusSuccess},
		{&plugin.TransactionInfo{Status: plugin.StatusPending}, domain.TransactionStatusPending},
		{&plugin.TransactionInfo{Status: plugin.StatusError}, domain.TransactionStatusPaymentFailure},
		{&plugin.TransactionInfo{Status: plugin.StatusCanceled}, domain.TransactionStatusPluginFailure},
		{&plugin.TransactionInfo{Status: plugin.StatusUndefined}, domain.TransactionStatusUnknown},
	}
	for _, tc := range cases {
		if got := statusForPluginInfo(tc.info); got != tc.want {
			t.Errorf("statusForPluginInfo(%+v) = %s, want %s", tc.info, got, tc.want)
		}
	}
}

func TestProcessedAmountFor(t *testing.T) {
	info := &plugin.TransactionInfo{Amount: 100, Currency: "USD"}

	cases := []struct {
		status     domain.TransactionStatus
		wantAmount int64
	}{
		{domain.TransactionStatusSuccess, 100},
		{domain.TransactionStatusPending, 100},
		{domain.TransactionStatusPaymentFailure, 100},
		{domain.TransactionStatusPluginFailure, 0},
		{domain.TransactionStatusUnknown, 0},
	}
	for _, tc := range cases {
		amount, currency := processedAmountFor(tc.status, info)
		if amount != tc.wantAmount {
			t.Errorf("processedAmountFor(%s) = %d, want %d", tc.status, amount, tc.wantAmount)
		}
		if tc.wantAmount != 0 && currency != "USD" {
			t.Errorf("processedAmountFor(%s) dropped the currency", tc.status)
		}
	}

	if amount, _ := processedAmountFor(domain.TransactionStatusSuccess, nil); amount != 0 {
		t.Errorf("a nil info must not carry a processed amount, got %d", amount)
	}
}

func TestMachinesCoverAllTypesAndOutcomes(t *testing.T) {
	machines, err := newMachines()
	if err != nil {
		t.Fatalf("failed to build machines: %v", err)
	}

	for _, typ := range transactionTypes {
		sm, ok := machines[typ]
		if !ok {
			t.Fatalf("missing machine for %s", typ)
		}
		for _, from := range []string{domain.InitStateName(typ), domain.PendingStateName(typ)} {
			for result, want := range map[automaton.OperationResult]string{
				automaton.OperationResultSuccess:   domain.SuccessStateName(typ),
				automaton.OperationResultFailure:   domain.FailedStateName(typ),
				automaton.OperationResultPending:   domain.PendingStateName(typ),
				automaton.OperationResultException: domain.ErroredStateName(typ),
			} {
				to, err := sm.NextState(from, operationName(typ), result)
				if err != nil {
					t.Fatalf("%s: no transition from %s on %s: %v", typ, from, result, err)
				}
				if to.Name != want {
					t.Fatalf("%s: (%s, %s) -> %s, want %s", typ, from, result, to.Name, want)
				}
			}
		}
		// Terminal states have no outgoing transitions.
		if _, err := sm.NextState(domain.SuccessStateName(typ), operationName(typ), automaton.OperationResultSuccess); err == nil {
			t.Fatalf("%s: SUCCESS must be terminal", typ)
		}
	}
}
