// Package supervisor runs an HTTP server spread across several worker
// processes that share one listening socket.
//
// The supervisor binds the socket itself, then re-executes the current binary
// once per worker with the socket passed as an inherited descriptor. Every
// worker accepts from the same kernel queue, so connections are balanced by the
// operating system. The program's entry point must therefore check
// worker.Requested before doing anything else and hand control to worker.Main
// with the same handler registrations the supervisor was built with.
//
// Start blocks until every worker has reported readiness and the port accepts
// connections. Stop cancels the control goroutine, then terminates and reaps
// every descendant process of the current process, escalating to SIGKILL after
// the grace period. Signal handling is opt-in through StopOnSignal.
package supervisor
