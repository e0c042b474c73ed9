// Package pipeline runs the staged validation of a checked-in attempt. A
// setup phase resolves the journal/issue context, an ordered list of
// precondition-gated stages records one notice each, and a teardown phase
// closes the checkpoint and releases the package on every exit path.
package pipeline
