package entities

import (
	"errors"
	"fmt"
)

var (
	ErrNoRouteFound             = errors.New("no route found")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrUnsupportedVenue         = errors.New("unsupported venue")
	ErrRPCUnavailable           = errors.New("rpc unavailable")
	ErrGasEstimationFailed      = errors.New("gas estimation failed")
	ErrApprovalFailed           = errors.New("approval failed")
	ErrTransactionReverted      = errors.New("transaction reverted")
	ErrTransactionStatusUnknown = errors.New("transaction status unknown")
	ErrSlippageExceeded         = errors.New("slippage exceeded")

	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidRoute       = errors.New("invalid route")
	ErrUnknownToken       = errors.New("unknown token")
	ErrChainIDMismatch    = errors.New("chain id mismatch")
	ErrPreviewUnsupported = errors.New("preview not supported by venue")
	ErrSubmitRejected     = errors.New("transaction rejected by node")
	ErrAccountBusy        = errors.New("account busy")
)

// StepError reports which step of a route failed and with which kind.
type StepError struct {
	Index     int
	Venue     string
	TokenIn   string
	TokenOut  string
	Direction string
	Kind      error
	Err       error
}

// NewStepError tags err with the venue, pair and direction of step.
func NewStepError(index int, step *SwapStep, kind, err error) *StepError {
	e := &StepError{Index: index, Kind: kind, Err: err}
	if step != nil && step.Pool != nil {
		e.Venue = step.Venue().Label()
		e.TokenIn = step.TokenIn().String()
		e.TokenOut = step.TokenOut().String()
		e.Direction = step.Direction.String()
	}
	return e
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("step %d (%s %s->%s %s): %v", e.Index, e.Venue, e.TokenIn, e.TokenOut, e.Direction, e.Kind)
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
