// Package structurer drives the full recovery pipeline for one function:
// descriptor load, dominance analysis, loop region discovery, control
// variable reduction, loop classification, idiom matching and structured
// tree construction. Batches of functions run concurrently; each function
// is independent and failures never leak across functions.
package structurer
