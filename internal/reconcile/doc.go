// Package reconcile decides when locally held shared state must be
// broadcast.
//
// Every tracked graph (a context's DesktopSnapshot, a player's gaming and
// cosmetic attributes, a player's movement) keeps the last value it sent.
// Values enter a Tracker tagged with their provenance. Local values are
// sanitized, compared against the baseline through a ChangeDetector and
// emitted whole when they differ. Remote values only move the baseline, so
// applying an incoming snapshot never causes it to be echoed back.
package reconcile
