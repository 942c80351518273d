// Package jobprogress follows the progress of a "find more suggestions" job.
//
// A session first tries the server-sent event stream and reconnects a bounded
// number of times when it drops; when streaming is unavailable, exhausted or
// the per-monitor stream ceiling is reached it polls the status endpoint
// instead. Handlers see phases in order (selecting, searching, creating, then
// completed or failed) and never see a stale event. Every session has a hard
// time limit after which OnError receives a services.ErrTimeout error.
package jobprogress
