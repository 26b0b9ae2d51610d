// Package receiver implements wire.ReadingServiceServer, the gRPC endpoint
// that accepts device readings from thermowatch-agent instances.
//
// Receiver.SendReading requires a device_id and four finite temperatures per
// side (codes.InvalidArgument otherwise), then records the reading through
// dashboard.Controller.SubmitSensor and returns the computed risk tier. A
// storage outage does not fail the call; the response message says so.
package receiver
