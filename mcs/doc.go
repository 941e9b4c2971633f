// Package mcs provides a streaming writer and reader for .mcs trace files.
//
// A trace is a flat sequence of records, one per frame, appended in arrival
// order immediately after decryption and before forwarding:
//
//	[direction:i32][sec:i32][usec:i32][framelen:i32][frame bytes...]
//
// All integers are big-endian. direction is 1 for client->server frames and
// 0 for server->client frames. Traces are written unbuffered so that a
// crash mid-session loses at most the record being written.
package mcs
