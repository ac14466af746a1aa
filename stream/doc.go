// Package stream moves tagged byte chunks between local streams and a framed transport.
//
// A Pump turns a reader into messages on a Router; a writer (Drain or DrainFrames)
// turns the Router's messages back into bytes on local sinks or on the transport.
package stream
