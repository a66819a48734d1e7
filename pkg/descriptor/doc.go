// Package descriptor defines the UI content extensions ask the host to show,
// and the decoder and validator every payload passes before any presentation
// manager sees it.
//
// Three kinds exist: live activities, lock-screen widgets and notch
// experiences. All share an id, a priority, an optional accent color and a
// coexistence flag; the rest is kind-specific. Descriptors are plain values.
// Once validated they are never modified: an update replaces the stored
// value for the same id wholesale.
package descriptor
