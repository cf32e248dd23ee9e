// Package results computes final results and payouts for finished escrows.
//
// Each manifest request type maps to a Calculator through a Registry. The
// Processor drives a calculator for an escrow: it saves final results to
// storage once, and later pays out against the stored results after checking
// their hash.
package results
