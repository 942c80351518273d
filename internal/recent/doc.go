// Package recent keeps the most recently chosen people so assignment pickers
// can list them first. The list is stored as a JSON array under
// "facereview.recent-persons" in the configured key/value backend.
package recent
