// Package protocol defines the records exchanged between the authoring context
// and the mirror contexts.
//
// This package contains plain serializable types only. Every other internal
// package imports protocol; protocol imports nothing internal.
//
// Key constraints:
//   - Ids are strings, vectors and quaternions are float64 arrays
//   - Quaternions are ordered x, y, z, w
//   - Partial updates use pointer fields (replace when present) and Opt fields
//     (present-and-null clears the value)
//   - Collider descriptors are a tagged union keyed by "type"
package protocol
