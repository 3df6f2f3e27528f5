package entities

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StepState is the position of a step in the execution state machine:
// NotStarted -> ApprovalPending -> ApprovalConfirmed -> TxBuilt -> TxSubmitted -> Confirmed|Reverted
type StepState string

const (
	StepNotStarted        StepState = "not_started"
	StepApprovalPending   StepState = "approval_pending"
	StepApprovalConfirmed StepState = "approval_confirmed"
	StepTxBuilt           StepState = "tx_built"
	StepTxSubmitted       StepState = "tx_submitted"
	StepConfirmed         StepState = "confirmed"
	StepReverted          StepState = "reverted"
)

// TxStatus is the externally visible status of a step's transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxReverted  TxStatus = "reverted"
)

// ExecutionStatus summarizes a whole route execution
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionPartial means at least one step committed before the failure.
	ExecutionPartial ExecutionStatus = "partial"
	// ExecutionFailed means no step committed.
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionUnknown means a submitted write timed out and needs reconciliation by hash.
	ExecutionUnknown ExecutionStatus = "unknown"
)

type StepRecord struct {
	Label        string      `json:"label"`
	State        StepState   `json:"state"`
	ApprovalHash common.Hash `json:"approvalHash,omitempty"`
	TxHash       common.Hash `json:"txHash,omitempty"`
	Nonce        uint64      `json:"nonce,omitempty"`
	GasLimit     uint64      `json:"gasLimit,omitempty"`
	GasUsed      uint64      `json:"gasUsed,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Status maps the state machine onto pending/confirmed/reverted
func (s StepRecord) Status() TxStatus {
	switch s.State {
	case StepConfirmed:
		return TxConfirmed
	case StepReverted:
		return TxReverted
	}
	return TxPending
}

// ExecutionRecord is built only by the transaction orchestrator.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	RouteID    string          `json:"routeId,omitempty"`
	Account    common.Address  `json:"account"`
	Steps      []StepRecord    `json:"steps"`
	Status     ExecutionStatus `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// HasRevert reports whether any step reverted
func (r *ExecutionRecord) HasRevert() bool {
	for _, s := range r.Steps {
		if s.State == StepReverted {
			return true
		}
	}
	return false
}

// ConfirmedSteps counts committed steps
func (r *ExecutionRecord) ConfirmedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.State == StepConfirmed {
			n++
		}
	}
	return n
}
