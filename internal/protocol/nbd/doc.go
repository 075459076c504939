// Package nbd implements the handshake and option phases of the NBD
// (Network Block Device) protocol from the client side.
//
// You can find a full description of the protocol at
// https://sourceforge.net/p/nbd/code/ci/master/tree/doc/proto.md
//
// The package covers exactly what a discovery probe needs: classifying the
// server greeting into one of the negotiation styles (oldstyle, newstyle,
// fixed newstyle), exchanging option requests and replies, and selecting an
// export to learn its size and transmission flags. The transmission phase
// (actual block reads and writes) is out of scope.
//
// The Session type owns one connection, its negotiation state and the
// registry of export names learned from the server. It blocks on every
// operation and is driven sequentially by a single caller.
package nbd
