// Package probe drives the discovery pipeline against a single NBD server:
// classify the negotiation style, enumerate the exported block devices where
// the protocol allows it, attach to each export to learn its size and
// transmission flags, and aggregate everything into a Report.
//
// The pipeline is strictly sequential and consumes the session through a
// narrow interface, so the transport can be swapped for a scripted fake in
// tests. Failures after a successful classification terminate only their own
// phase; results gathered earlier always flow into the final report.
package probe
