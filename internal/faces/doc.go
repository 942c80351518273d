// Package faces tracks the active face list shown to the reviewer and a small
// local directory of known people.
//
// Assignment state is the {personId, personName} pair of a face; the Board
// guarantees both fields change together. Name matching in the directory is
// case-folded so "mia" and "MIA" resolve to the same person.
package faces
