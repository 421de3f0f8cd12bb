// Package lift reads function descriptors produced by the upstream lifter.
// A descriptor is the serialised form of one function: entry block, blocks
// of primitive statements, and typed edges. JSON is the interchange format;
// msgpack is the compact binary form the lifter emits for large batches.
package lift
