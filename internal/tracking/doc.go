// Package tracking owns a single driving session: it filters incoming
// location fixes, accumulates great-circle distance and driving time while
// the session is Driving, and produces a Result when the session ends.
//
// A Session is not safe for concurrent use. The engine package serializes
// all access from one goroutine.
package tracking
