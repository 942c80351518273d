// Package assign turns single review decisions into backend mutations.
//
// Each operation updates the suggestion store and the face board first, then
// calls the backend. If the call fails, every touched record is restored to
// its captured pre-call state and the error is returned with its
// services marker intact. Operations on the same face never overlap: the
// second caller receives services.ErrBusy without any network traffic.
package assign
