// Package logs reads the facereview log file for the "facereview logs"
// command.
//
// Tail returns the last lines of the file and, in follow mode, keeps emitting
// lines appended afterwards until the context ends. A Filter narrows JSON
// formatted lines to one face, suggestion or event type; console formatted
// lines only support a plain substring match.
package logs
