// Package reduce eliminates control variables: integer locals introduced by
// control-flow flattening that are written only to small literal constants
// and read only in branch predicates of one loop region.
//
// Reduction walks every write-to-read chain inside the region. A read site
// resolves when each predecessor path carries one known constant, in which
// case the dispatch branch is bypassed with a direct edge and the dead
// writes are deleted. Any unresolvable read (value escapes the region, a
// path reads before writing, a dispatch block with side effects) leaves the
// variable and its branches untouched; the caller records a diagnostic and
// continues.
package reduce
