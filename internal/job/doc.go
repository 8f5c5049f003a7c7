// Package job models one execution of the fetch pipeline for a chosen format.
//
// A Job is created by the session layer when the user picks a rendition, is
// owned by the scheduler until it reaches a terminal state, and is otherwise
// only read. State changes go through Transition, which allows forward moves
// along the pipeline order plus Failed or Cancelled from any non-terminal
// state; terminal states never change again.
package job
