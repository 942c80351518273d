// Package preflight provides readiness checks for the review API and the
// local paths facereview depends on.
//
// The CLI "facereview status" command runs RunAll and renders one status line
// per Result. Checks never mutate remote state: the API probe lists a single
// pending suggestion and the state probe reads one key.
package preflight
