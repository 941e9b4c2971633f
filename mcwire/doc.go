// Package mcwire implements the length-prefixed frame codec of the
// Minecraft line protocol: VarInt primitives, frame extraction from a raw
// receive buffer, and the optional zlib compression envelope toggled by
// SetCompression during login.
//
// The codec is buffer-oriented rather than stream-oriented: the proxy pump
// accumulates raw (already decrypted) bytes per socket and calls
// ExtractFrame until the buffer holds only an incomplete frame. Partial
// input never yields a frame.
package mcwire
