/*
Package crdt implements the delta-state convergent structures upon that the
replicated parts of convergent are built: vector clocks, dots and their causal
contexts, the dot kernel as the common merge primitive, and the add-wins
observed-removed set and map (AWORSet, AWORMap) derived from it.

CAUTION! Consider these two requirements:
* Merging is safe against message loss, duplication and reordering, but every
  kernel fed into this package from the outside (e.g. parsed off the wire) has
  to be validated via Check() before use. An entry carrying a dot its context
  has not seen is a corrupted state, not a recoverable condition.
* Access to the functions this package provides is expected to be synchronized
  explicitly by some outside measures, e.g. by wrapping calls to this package
  with a mutex lock if concurrent access is possible. This package does not(!)
  synchronize access by itself.

The structures are practical derivations from their specification by Almeida,
Shoker and Baquero, available under: https://arxiv.org/abs/1603.01529
*/
package crdt
