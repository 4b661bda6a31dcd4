package sdk

import "math"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// SOLToLamports converts a SOL amount to lamports, truncating
// fractions of a lamport.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Floor(sol * float64(LamportsPerSOL)))
}

// LamportsToSOL converts lamports to SOL for display.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(LamportsPerSOL)
}
