// SPDX-License-Identifier: EPL-2.0

// Package cache keeps one decoded buffer per corner slot.
//
// Setting a source records a content fingerprint for the slot. When the
// fingerprint changes the old buffer is dropped and a decode is scheduled
// on a bounded pool of goroutines; its result is published only if the
// slot still wants the same content when the decode finishes, so the most
// recent SetSource always wins. Readers never block: [Cache.Buffer] returns
// nil while a decode is pending or after it failed.
package cache
