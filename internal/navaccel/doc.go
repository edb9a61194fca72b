// Package navaccel warms the network fetch of same-origin pages the user is
// about to visit and exposes a root-element marker while a real navigation is
// underway.
//
// The package is split in three parts:
//   - Evaluate decides whether an anchor is a prefetchable destination.
//   - Controller issues at most one fetch per destination, fragment ignored.
//   - Init attaches capture-phase listeners to a Document/Window pair and
//     returns a Manager whose Teardown detaches them.
//
// Navigation itself is never intercepted. Every path is best effort: a failed
// prefetch or a missing environment leaves ordinary browser navigation intact.
package navaccel
