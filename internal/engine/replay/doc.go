// Package replay feeds recorded location fixes through an engine in
// fixed-size batches.
//
// Each batch is followed by a round trip through the engine queue, so a
// replay never outruns the queue and no fix is dropped for lack of space
// as long as the batch size does not exceed the queue capacity.
package replay
