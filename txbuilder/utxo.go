// Package txbuilder builds the commit and reveal transaction pair that
// inscribes a compressed, signed rollup blob into a taproot output, mining
// the reveal transaction until its txid carries the required
// proof-of-work prefix.
package txbuilder

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// UTXO is a spendable output a sequencer wallet can fund a commit
// transaction with.
type UTXO struct {
	TxID      chainhash.Hash
	Vout      uint32
	Amount    int64
	Spendable bool
	Solvable  bool
}

// ChooseUTXOs selects a set of UTXOs covering amount. It first looks for
// the smallest single UTXO that covers the amount on its own; failing
// that, it greedily accumulates UTXOs from largest to smallest until the
// running sum reaches amount. It returns ErrNotEnoughUTXOs if even the
// full set falls short.
func ChooseUTXOs(utxos []UTXO, amount int64) ([]UTXO, int64, error) {
	var bigger []UTXO
	for _, u := range utxos {
		if u.Amount >= amount {
			bigger = append(bigger, u)
		}
	}

	if len(bigger) > 0 {
		sort.Slice(bigger, func(i, j int) bool {
			return bigger[i].Amount < bigger[j].Amount
		})

		chosen := bigger[0]
		return []UTXO{chosen}, chosen.Amount, nil
	}

	var smaller []UTXO
	for _, u := range utxos {
		if u.Amount < amount {
			smaller = append(smaller, u)
		}
	}
	sort.Slice(smaller, func(i, j int) bool {
		return smaller[i].Amount > smaller[j].Amount
	})

	var (
		chosen []UTXO
		sum    int64
	)
	for _, u := range smaller {
		sum += u.Amount
		chosen = append(chosen, u)

		if sum >= amount {
			break
		}
	}

	if sum < amount {
		return nil, 0, ErrNotEnoughUTXOs
	}

	return chosen, sum, nil
}
