// Package analysis turns an uploaded thermogram into zone temperatures.
//
// There is no real thermal-image processing: the Simulated provider waits a
// configurable delay, then generates a reading shaped for a risk scenario
// chosen from the image content. The wait honours ctx, so a caller that
// abandons an analysis (a newer upload, an explicit cancel) gets
// context.Canceled back instead of a stale result.
package analysis
