// Package jacobian provides derivative storage for the model tree.
//
// Two layers live here:
//
//   - [Partials]: per-node blocks of local derivatives keyed by
//     (of, wrt) variable name, dense or declared structurally zero.
//   - [Assembled]: a subtree's partials concatenated into one square
//     matrix over the subtree state ordering, in dense or
//     compressed-sparse form, with cached structure and LU
//     factorization for direct solves.
//
// The package knows nothing about the model tree itself; internal/model
// walks its leaves and feeds entries in via [Assembled.Add].
package jacobian
