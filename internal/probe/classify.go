package probe

import (
	"fmt"

	"github.com/blockprobe/nbdscan/internal/logger"
	"github.com/blockprobe/nbdscan/internal/protocol/nbd"
)

// route tells Run which phases follow classification.
type route int

const (
	// routeStop ends the probe after the protocol section
	routeStop route = iota

	// routeAttach skips enumeration: the connection only permits a
	// single option, so attaching is all that is possible
	routeAttach

	// routeEnumerate runs full option haggling before attaching
	routeEnumerate
)

// fixedNewstyleAdvisory is recorded when an oldstyle server still advertises
// the fixed-newstyle capability in its greeting.
const fixedNewstyleAdvisory = "server appears capable of fixed newstyle negotiation on another port/path"

// classify maps the session's negotiation mode onto the downstream path.
// A mode value outside the four known ones is a version-skew fault between
// the session layer and this pipeline and fails the run.
func classify(sess Session) (route, string, error) {
	mode := sess.NegotiationMode()
	switch mode {
	case nbd.ModeUnrecognized:
		logger.Debug("Negotiation style not recognized, stopping")
		return routeStop, "", nil

	case nbd.ModeOldstyle:
		return routeStop, oldstyleNote(sess), nil

	case nbd.ModeNewstyle:
		return routeAttach, "", nil

	case nbd.ModeFixedNewstyle:
		return routeEnumerate, "", nil

	default:
		return routeStop, "", fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
}

// oldstyleNote checks the metadata an oldstyle greeting pre-populates for
// the implicit default export. When its handshake flags carry the
// fixed-newstyle bit, the server likely speaks the richer dialect elsewhere
// and the report gets an advisory line.
func oldstyleNote(sess Session) string {
	if _, ok := sess.Exports().Lookup(""); !ok {
		return ""
	}
	if sess.HandshakeFlags()&nbd.HandshakeFlagFixedNewstyle == 0 {
		return ""
	}
	return fixedNewstyleAdvisory
}
