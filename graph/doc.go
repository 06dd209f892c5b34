// SPDX-License-Identifier: EPL-2.0

// Package graph is the persistent mixing topology: a stereo master bus fed
// by one-shot voices, split into a dry path and a convolution (wet) path and
// summed back together at the output with a crossfade.
//
// Voices live in an arena owned by the [Topology]. Each [Topology.Start]
// call takes a pan stage shared by all voices it starts; the stage is
// reference counted and returns to its pool when the last of those voices
// ends. Voices are released by [Topology.Render] exactly once, when their
// buffer is exhausted. There is no way to stop a voice early.
//
// Render is meant to be called from a single audio goroutine. Everything
// else may be called concurrently with it.
package graph
