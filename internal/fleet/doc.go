// Package fleet coordinates the device sessions of a terminal fleet:
// startup, health monitoring with automatic session restarts, status
// reporting, and concurrent command fan-out across devices.
//
// The package deals only in the Session abstraction; it never touches a
// device protocol directly. One supervisor owns the whole fleet.
package fleet
