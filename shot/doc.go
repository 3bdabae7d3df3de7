// Package shot runs synchronized captures on several units.
//
// A shot goes through the phases
//
//	prep -> arm all -> wait all armed -> trigger -> wait all stopped -> collect
//
// The two wait phases run one waiter per unit plus a watchdog. Once some
// waiters have returned, the watchdog gives the others the zombie timeout to
// catch up, then breaks their waits. Units broken out of a wait are excluded
// from the rest of the shot and reported in the Report; the shot goes on with
// the others.
package shot
