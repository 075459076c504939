package probe

import (
	"github.com/blockprobe/nbdscan/internal/logger"
	"github.com/blockprobe/nbdscan/internal/protocol/nbd"
)

// enumerate runs the LIST option-haggling loop and registers every export
// name the server advertises. It returns the number of newly discovered
// names.
//
// Every failure here is phase-terminating, never fatal: a session that
// cannot build the request yields a silent no-op, a send failure is logged
// and ends the phase, and the receive loop stops on the first reply that is
// missing or not SERVER-typed (the terminal ACK and the error replies both
// land here). Discovery never attaches.
func enumerate(sess Session) int {
	req := sess.BuildListRequest()
	if req == nil {
		return 0
	}

	if err := sess.Send(req); err != nil {
		logger.Debug("Export list request failed: %v", err)
		return 0
	}

	discovered := 0
	for {
		reply, err := sess.ReceiveOptionReply()
		if err != nil {
			logger.Debug("Export list reply stream ended: %v", err)
			return discovered
		}
		if reply == nil || reply.Type != nbd.RepServer {
			if reply != nil && reply.IsError() {
				logger.Debug("Server rejected export listing (reply type 0x%x)", reply.Type)
			}
			return discovered
		}

		if _, isNew := sess.Exports().Add(reply.Name); isNew {
			logger.Debug("Discovered export %q", reply.Name)
			discovered++
		}
	}
}
