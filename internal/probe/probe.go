package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockprobe/nbdscan/internal/protocol/nbd"
)

// ErrUnknownMode signals a negotiation mode value this pipeline was not
// built for. It indicates a contract mismatch between the session layer and
// the pipeline, not server behavior, so it aborts the run.
var ErrUnknownMode = errors.New("unknown negotiation mode")

// Session is the capability surface the pipeline consumes. It is satisfied
// by *nbd.Session; tests substitute scripted fakes.
type Session interface {
	NegotiationMode() nbd.NegotiationMode
	TLSWrapped() bool
	HandshakeFlags() uint16
	Exports() *nbd.ExportSet

	BuildListRequest() *nbd.OptionRequest
	Send(req *nbd.OptionRequest) error
	ReceiveOptionReply() (*nbd.OptionReply, error)

	Reconnect(ctx context.Context) error
	Attach(name string) error
	Close() error
}

// Run drives one probe over an already-connected session: classify the
// negotiation style, enumerate exports where the protocol allows it, attach
// to each export of interest and aggregate the result.
//
// Run owns the session for its duration and closes it exactly once on every
// path. Failures past the classification step terminate their own phase but
// never discard information gathered before them.
func Run(ctx context.Context, sess Session, requested []string) (*Report, error) {
	defer sess.Close()

	route, note, err := classify(sess)
	if err != nil {
		return nil, fmt.Errorf("classify negotiation: %w", err)
	}

	switch route {
	case routeStop:
		return &Report{Protocol: protocolSection(sess, note)}, nil
	case routeEnumerate:
		enumerate(sess)
	case routeAttach:
		// single-option connection, attach directly
	}

	attachAll(ctx, sess, requested)

	return &Report{
		Protocol: protocolSection(sess, note),
		Exports:  exportSections(sess.Exports()),
	}, nil
}
