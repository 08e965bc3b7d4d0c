// Package schedule holds the rule model, the rule validator and the evaluator
// that turns a rule set and a wall-clock minute into desired actuator states.
//
// Everything here is pure: no I/O, no goroutines, no hidden clock reads. The
// engine feeds in a store snapshot and the current minute and gets back what
// the light and pump should be doing.
package schedule
