// Package procutil enumerates and terminates the process tree spawned by the
// supervisor.
//
// Descendants are discovered by walking parent links in the OS process table
// rather than by tracking handles, so grandchildren started by workers are
// included. Termination sends SIGTERM (to the whole process group when the
// target leads one), waits for every target concurrently and escalates to
// SIGKILL once the grace period elapses. Group signalling and the parent-death
// signal are only available on unix; Linux additionally guarantees that workers
// receive SIGTERM if the supervisor itself dies.
package procutil
