// Package idiom recognises known low-level patterns inside loop regions and
// straight-line sequences so they can be reported as named operations.
//
// Matchers are structural automata registered in code; the external pattern
// table selects which matchers run and tunes their parameters. The table is
// loaded once at process start and treated as immutable, so concurrent
// workers share it without locking. Matchers run after control-variable
// reduction, where dispatch noise no longer hides the shapes, and never
// fabricate a parameter they cannot extract: a structural match with a
// missing required parameter is reported and skipped.
package idiom
