package probe

import (
	"context"

	"github.com/blockprobe/nbdscan/internal/logger"
)

// attachAll attaches to every export of interest, one connection at a time.
//
// The attach list is the caller-requested names in their given order (an
// empty request list means the single implicit default export), followed by
// every name currently registered on the session in discovery order. Names
// appearing in both halves are attached twice; the protocol cost of the
// extra reconnect is accepted to keep the caller's request list authoritative.
//
// The first attach rides the live connection. Every later one needs a fresh
// handshake first, because outside fixed newstyle's richer option set a
// connection is spent once an export is selected; the probe attaches
// one-at-a-time in all modes for uniformity. A failed reconnect aborts the
// remainder and keeps whatever was gathered.
func attachAll(ctx context.Context, sess Session, requested []string) {
	list := requested
	if len(list) == 0 {
		list = []string{""}
	}
	list = append(append([]string(nil), list...), sess.Exports().Names()...)

	for i, name := range list {
		if i > 0 {
			if err := sess.Reconnect(ctx); err != nil {
				logger.Debug("Reconnect before attaching %q failed, stopping: %v", name, err)
				return
			}
		}
		// A caller-supplied name becomes a known export the moment it is
		// attempted, so it shows up in the report even when the attach
		// yields nothing. The implicit default is not caller-supplied and
		// only enters the mapping when its attach learns something.
		if i < len(requested) {
			sess.Exports().Add(name)
		}
		if err := sess.Attach(name); err != nil {
			logger.Debug("Attach %q failed: %v", name, err)
		}
	}
}
