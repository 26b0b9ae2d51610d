// Package wire defines the gRPC contract between thermowatch-agent and
// thermowatch-server: the ReadingService/SendReading unary RPC.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// "json" content-subtype, so no generated protobuf code is needed. The client
// stub selects the codec per call; the server picks it up from the request's
// content-type automatically once this package is imported.
package wire
