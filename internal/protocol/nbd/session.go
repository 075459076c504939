package nbd

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blockprobe/nbdscan/internal/logger"
)

// DialFunc dials the target server. It exists so tests can inject in-memory
// connections; when nil, a net.Dialer is used.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config carries everything a Session needs to reach one server.
type Config struct {
	// Address is the host:port of the target server
	Address string

	// Timeout bounds every blocking I/O operation on the connection.
	// Zero means no deadline.
	Timeout time.Duration

	// TLS, when non-nil, wraps the dialed connection before the
	// handshake ("TLS from start" deployments)
	TLS *tls.Config

	// Dial overrides the dialer, mainly for tests
	Dial DialFunc
}

// Session is one connection to an NBD server, covering the handshake and
// option phases only. It is not safe for concurrent use; the probe pipeline
// drives it strictly sequentially.
type Session struct {
	cfg  Config
	conn net.Conn

	mode           NegotiationMode
	tlsWrapped     bool
	handshakeFlags uint16

	exports *ExportSet
	closed  bool
}

// Connect dials the configured address and performs the initial handshake.
// The returned session has its negotiation mode, handshake flags and any
// pre-known default-export metadata populated.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{
		cfg:     cfg,
		exports: NewExportSet(),
	}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	if err := s.handshake(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Reconnect drops the current connection and performs a fresh handshake
// against the same address. Export info gathered so far is preserved.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.closed = false
	if err := s.dial(ctx); err != nil {
		return err
	}
	return s.handshake()
}

func (s *Session) dial(ctx context.Context) error {
	dial := s.cfg.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: s.cfg.Timeout}
		dial = d.DialContext
	}

	conn, err := dial(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Address, err)
	}

	if s.cfg.TLS != nil {
		conn = tls.Client(conn, s.cfg.TLS)
		s.tlsWrapped = true
	}

	s.conn = conn
	return nil
}

// handshake reads the server greeting and classifies the negotiation style.
// An unknown greeting is not an error: the session stays connected with
// ModeUnrecognized so the caller can report and close.
func (s *Session) handshake() error {
	s.mode = ModeUnrecognized
	s.handshakeFlags = 0

	var greeting [16]byte
	if err := s.readFull(greeting[:]); err != nil {
		return fmt.Errorf("read server greeting: %w", err)
	}

	if binary.BigEndian.Uint64(greeting[0:8]) != MagicNBD {
		return nil
	}

	switch binary.BigEndian.Uint64(greeting[8:16]) {
	case MagicOldstyle:
		return s.finishOldstyle()
	case MagicOption:
		return s.finishNewstyle()
	default:
		return nil
	}
}

// finishOldstyle consumes the rest of the legacy greeting: default export
// size, a 32-bit flags word and the zero pad. The low half of the flags word
// is the default export's transmission flags; the high half carries
// handshake flags on servers that also advertise newstyle support.
func (s *Session) finishOldstyle() error {
	var body [12]byte
	if err := s.readFull(body[:]); err != nil {
		return fmt.Errorf("read oldstyle header: %w", err)
	}
	if err := s.discard(exportNamePadding); err != nil {
		return fmt.Errorf("read oldstyle padding: %w", err)
	}

	size := binary.BigEndian.Uint64(body[0:8])
	flags := binary.BigEndian.Uint32(body[8:12])

	s.mode = ModeOldstyle
	s.handshakeFlags = uint16(flags >> 16)

	info, _ := s.exports.Add("")
	info.Size = &size
	s.applyTransmissionFlags(info, uint16(flags))
	return nil
}

// finishNewstyle reads the server handshake flags and sends back the client
// flags. Only the fixed-newstyle bit is echoed: NoZeroes is never requested,
// so export-name replies keep their padded form.
func (s *Session) finishNewstyle() error {
	var flags [2]byte
	if err := s.readFull(flags[:]); err != nil {
		return fmt.Errorf("read handshake flags: %w", err)
	}
	s.handshakeFlags = binary.BigEndian.Uint16(flags[:])

	if s.handshakeFlags&HandshakeFlagFixedNewstyle != 0 {
		s.mode = ModeFixedNewstyle
	} else {
		s.mode = ModeNewstyle
	}

	var client [4]byte
	binary.BigEndian.PutUint32(client[:], uint32(s.handshakeFlags&HandshakeFlagFixedNewstyle))
	if err := s.write(client[:]); err != nil {
		return fmt.Errorf("send client flags: %w", err)
	}
	return nil
}

// NegotiationMode returns the mode classified during the last handshake.
func (s *Session) NegotiationMode() NegotiationMode {
	return s.mode
}

// TLSWrapped reports whether the connection is TLS-wrapped.
func (s *Session) TLSWrapped() bool {
	return s.tlsWrapped
}

// HandshakeFlags returns the handshake flags observed at connect time.
func (s *Session) HandshakeFlags() uint16 {
	return s.handshakeFlags
}

// Exports returns the session's export registry.
func (s *Session) Exports() *ExportSet {
	return s.exports
}

// BuildListRequest returns a LIST option request, or nil when the current
// negotiation mode does not support option haggling.
func (s *Session) BuildListRequest() *OptionRequest {
	if s.mode != ModeFixedNewstyle {
		return nil
	}
	return &OptionRequest{Option: OptList}
}

// Send writes one option request to the server.
func (s *Session) Send(req *OptionRequest) error {
	if err := s.write(req.Encode()); err != nil {
		return fmt.Errorf("send option 0x%x: %w", req.Option, err)
	}
	return nil
}

// ReceiveOptionReply reads one option reply. A nil reply with a nil error is
// never returned; callers treat any error as end of the reply stream.
func (s *Session) ReceiveOptionReply() (*OptionReply, error) {
	if err := s.deadline(); err != nil {
		return nil, err
	}
	return ReadOptionReply(s.conn)
}

// Attach selects the named export via OptExportName and records the size
// and transmission flags the server answers with. The connection cannot be
// used for further options afterwards.
func (s *Session) Attach(name string) error {
	if s.mode != ModeNewstyle && s.mode != ModeFixedNewstyle {
		return fmt.Errorf("attach is not supported in %s mode", s.mode)
	}

	req := &OptionRequest{Option: OptExportName, Data: []byte(name)}
	if err := s.Send(req); err != nil {
		return err
	}

	var body [10]byte
	if err := s.readFull(body[:]); err != nil {
		return fmt.Errorf("attach %q: %w", name, err)
	}
	if err := s.discard(exportNamePadding); err != nil {
		return fmt.Errorf("attach %q padding: %w", name, err)
	}

	size := binary.BigEndian.Uint64(body[0:8])
	flags := binary.BigEndian.Uint16(body[8:10])

	info, _ := s.exports.Add(name)
	info.Size = &size
	s.applyTransmissionFlags(info, flags)

	logger.Debug("Attached export %q: size=%d flags=0x%x", name, size, flags)
	return nil
}

func (s *Session) applyTransmissionFlags(info *ExportInfo, flags uint16) {
	if flags&TransmissionFlagHasFlags == 0 {
		return
	}
	info.HasFlags = true
	info.Flags = TransmissionFlagNames(flags)
}

// Close closes the underlying connection. It is safe to call more than
// once; only the first call closes the connection.
func (s *Session) Close() error {
	if s.closed || s.conn == nil {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Session) deadline() error {
	if s.cfg.Timeout <= 0 {
		return nil
	}
	return s.conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
}

func (s *Session) readFull(buf []byte) error {
	if err := s.deadline(); err != nil {
		return err
	}
	_, err := io.ReadFull(s.conn, buf)
	return err
}

func (s *Session) discard(n int) error {
	if err := s.deadline(); err != nil {
		return err
	}
	_, err := io.CopyN(io.Discard, s.conn, int64(n))
	return err
}

func (s *Session) write(buf []byte) error {
	if err := s.deadline(); err != nil {
		return err
	}
	_, err := s.conn.Write(buf)
	return err
}
