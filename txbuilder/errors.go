package txbuilder

import goerrors "github.com/go-errors/errors"

// ErrNotEnoughUTXOs is returned verbatim (misspelling and all) so that any
// other implementation walking the same wallet state produces a
// byte-identical diagnostic.
var ErrNotEnoughUTXOs = goerrors.Errorf("not enought UTXOs")

// ErrNoSpendableUTXOs is returned when a wallet's UTXO set has nothing
// both spendable and solvable above the dust limit to build from.
var ErrNoSpendableUTXOs = goerrors.Errorf("no spendable utxos")

// ErrInputUTXOTooSmall is returned when the commit output selected to
// fund a reveal transaction falls below the dust limit.
var ErrInputUTXOTooSmall = goerrors.Errorf("input utxo not big enough")

// ErrFeeLoopDiverged is returned when the size-stable fee estimation loop
// fails to converge within its iteration budget. The reference
// implementation this adapter is modeled on has no such cap and can loop
// forever on pathological fee rates; this adapter bounds it instead of
// hanging a sequencer.
var ErrFeeLoopDiverged = goerrors.Errorf("fee estimation loop did not converge")

// InsufficientFunds wraps ErrNotEnoughUTXOs with the amount that could not
// be funded, for callers that want to report it to an operator.
type InsufficientFunds struct {
	Requested int64
	Available int64
}

func (e *InsufficientFunds) Error() string {
	return ErrNotEnoughUTXOs.Error()
}

func (e *InsufficientFunds) Unwrap() error {
	return ErrNotEnoughUTXOs
}
