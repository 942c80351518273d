// Package loader fetches the suggestions for the face a reviewer is looking
// at. When the reviewer moves on before a response arrives, the older result
// is dropped so it can never overwrite the newer face's data.
package loader
