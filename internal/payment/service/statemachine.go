package service

import (
	"fmt"

	"github.com/smallbiznis/paycore/internal/automaton"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Each transaction type runs its own four-outcome machine:
//
//	X_INIT --OP_X--> X_SUCCESS | X_FAILED | X_PENDING | X_ERRORED
//
// and a PENDING attempt is completed by re-running the operation from
// X_PENDING. ERRORED is not re-run here; reconciliation resolves it.
var transactionTypes = []domain.TransactionType{
	domain.TransactionTypeAuthorize,
	domain.TransactionTypeCapture,
	domain.TransactionTypePurchase,
	domain.TransactionTypeRefund,
	domain.TransactionTypeCredit,
	domain.TransactionTypeVoid,
	domain.TransactionTypeChargeback,
}

func operationName(t domain.TransactionType) string { return "OP_" + string(t) }

func newMachines() (map[domain.TransactionType]*automaton.StateMachine, error) {
	machines := make(map[domain.TransactionType]*automaton.StateMachine, len(transactionTypes))
	for _, t := range transactionTypes {
		states := []string{
			domain.InitStateName(t),
			domain.SuccessStateName(t),
			domain.FailedStateName(t),
			domain.PendingStateName(t),
			domain.ErroredStateName(t),
		}
		op := operationName(t)
		var transitions []automaton.Transition
		for _, from := range []string{domain.InitStateName(t), domain.PendingStateName(t)} {
			transitions = append(transitions,
				automaton.Transition{InitialState: from, Operation: op, Result: automaton.OperationResultSuccess, FinalState: domain.SuccessStateName(t)},
				automaton.Transition{InitialState: from, Operation: op, Result: automaton.OperationResultFailure, FinalState: domain.FailedStateName(t)},
				automaton.Transition{InitialState: from, Operation: op, Result: automaton.OperationResultPending, FinalState: domain.PendingStateName(t)},
				automaton.Transition{InitialState: from, Operation: op, Result: automaton.OperationResultException, FinalState: domain.ErroredStateName(t)},
			)
		}
		sm, err := automaton.New("payment."+string(t), states, []string{op}, transitions)
		if err != nil {
			return nil, fmt.Errorf("build %s machine: %w", t, err)
		}
		machines[t] = sm
	}
	return machines, nil
}
