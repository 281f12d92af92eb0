// Package webhook delivers decoded attendance events to the backend
// membership system over HTTP. It is the boundary between the terminal
// engine and the outside world: failures stop here.
package webhook
