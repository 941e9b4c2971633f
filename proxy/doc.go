// Package proxy is the man-in-the-middle core: the per-connection session
// state, the four-phase handshake state machine that re-originates the
// protocol's cryptographic pedigree, the packet pump splicing the two
// sockets, and the packet registry mapping (direction, phase, id) to typed
// decoders.
//
// One session exists at a time. All session state is owned and mutated by
// the pump goroutine; the two socket readers only hand it raw byte runs.
package proxy
