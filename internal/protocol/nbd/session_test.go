package nbd

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialer hands out the client halves of pre-created pipes, one per dial,
// so reconnects get a fresh scripted connection.
type pipeDialer struct {
	conns []net.Conn
}

func (d *pipeDialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	if len(d.conns) == 0 {
		return nil, io.ErrClosedPipe
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

// newScriptedServer creates a pipe and runs script against the server half.
func newScriptedServer(t *testing.T, script func(conn net.Conn)) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		script(server)
	}()
	return client
}

func testConfig(dialer *pipeDialer) Config {
	return Config{
		Address: "127.0.0.1:10809",
		Timeout: 2 * time.Second,
		Dial:    dialer.dial,
	}
}

// Server-side script helpers

func writeNewstyleGreeting(conn net.Conn, handshakeFlags uint16) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint64(MagicNBD))
	binary.Write(buf, binary.BigEndian, uint64(MagicOption))
	binary.Write(buf, binary.BigEndian, handshakeFlags)
	conn.Write(buf.Bytes())

	// Consume the client flags
	io.ReadFull(conn, make([]byte, 4))
}

func writeOldstyleGreeting(conn net.Conn, size uint64, flags uint32) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint64(MagicNBD))
	binary.Write(buf, binary.BigEndian, uint64(MagicOldstyle))
	binary.Write(buf, binary.BigEndian, size)
	binary.Write(buf, binary.BigEndian, flags)
	buf.Write(make([]byte, exportNamePadding))
	conn.Write(buf.Bytes())
}

// readOptionRequest consumes one option request and returns its code and payload.
func readOptionRequest(conn net.Conn) (uint32, []byte) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil
	}
	option := binary.BigEndian.Uint32(header[8:12])
	length := binary.BigEndian.Uint32(header[12:16])
	payload := make([]byte, length)
	io.ReadFull(conn, payload)
	return option, payload
}

func writeExportDetails(conn net.Conn, size uint64, flags uint16) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, size)
	binary.Write(buf, binary.BigEndian, flags)
	buf.Write(make([]byte, exportNamePadding))
	conn.Write(buf.Bytes())
}

// Tests

func TestConnect_FixedNewstyle(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle|HandshakeFlagNoZeroes)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, ModeFixedNewstyle, sess.NegotiationMode())
	assert.Equal(t, uint16(HandshakeFlagFixedNewstyle|HandshakeFlagNoZeroes), sess.HandshakeFlags())
	assert.False(t, sess.TLSWrapped())
	assert.NotNil(t, sess.BuildListRequest())
	assert.Equal(t, 0, sess.Exports().Len())
}

func TestConnect_NewstyleWithoutFixedBit(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, 0)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, ModeNewstyle, sess.NegotiationMode())
	assert.Nil(t, sess.BuildListRequest(), "only one option per connection, LIST is off the table")
}

func TestConnect_ClientNeverRequestsNoZeroes(t *testing.T) {
	flagsCh := make(chan uint32, 1)
	client := newScriptedServer(t, func(conn net.Conn) {
		buf := new(bytes.Buffer)
		binary.Write(buf, binary.BigEndian, uint64(MagicNBD))
		binary.Write(buf, binary.BigEndian, uint64(MagicOption))
		binary.Write(buf, binary.BigEndian, uint16(HandshakeFlagFixedNewstyle|HandshakeFlagNoZeroes))
		conn.Write(buf.Bytes())

		clientFlags := make([]byte, 4)
		io.ReadFull(conn, clientFlags)
		flagsCh <- binary.BigEndian.Uint32(clientFlags)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, uint32(HandshakeFlagFixedNewstyle), <-flagsCh)
}

func TestConnect_Oldstyle(t *testing.T) {
	size := uint64(1 << 30)
	flags := uint32(HandshakeFlagFixedNewstyle)<<16 |
		uint32(TransmissionFlagHasFlags|TransmissionFlagReadOnly)

	client := newScriptedServer(t, func(conn net.Conn) {
		writeOldstyleGreeting(conn, size, flags)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, ModeOldstyle, sess.NegotiationMode())
	assert.Equal(t, uint16(HandshakeFlagFixedNewstyle), sess.HandshakeFlags())

	// The greeting pre-populates the implicit default export
	info, ok := sess.Exports().Lookup("")
	require.True(t, ok)
	require.NotNil(t, info.Size)
	assert.Equal(t, size, *info.Size)
	assert.True(t, info.HasFlags)
	assert.Equal(t, []string{"READ_ONLY"}, info.Flags)
}

func TestConnect_UnrecognizedGreeting(t *testing.T) {
	t.Run("WrongInitialMagic", func(t *testing.T) {
		client := newScriptedServer(t, func(conn net.Conn) {
			conn.Write(bytes.Repeat([]byte{0x42}, 16))
		})
		dialer := &pipeDialer{conns: []net.Conn{client}}

		sess, err := Connect(context.Background(), testConfig(dialer))
		require.NoError(t, err, "an unknown greeting is a classification, not an error")
		defer sess.Close()

		assert.Equal(t, ModeUnrecognized, sess.NegotiationMode())
		assert.Nil(t, sess.BuildListRequest())
	})

	t.Run("WrongStyleMagic", func(t *testing.T) {
		client := newScriptedServer(t, func(conn net.Conn) {
			buf := new(bytes.Buffer)
			binary.Write(buf, binary.BigEndian, uint64(MagicNBD))
			binary.Write(buf, binary.BigEndian, uint64(0x1122334455667788))
			conn.Write(buf.Bytes())
		})
		dialer := &pipeDialer{conns: []net.Conn{client}}

		sess, err := Connect(context.Background(), testConfig(dialer))
		require.NoError(t, err)
		defer sess.Close()

		assert.Equal(t, ModeUnrecognized, sess.NegotiationMode())
	})
}

func TestConnect_DialFailure(t *testing.T) {
	dialer := &pipeDialer{} // no connections to hand out

	_, err := Connect(context.Background(), testConfig(dialer))
	assert.Error(t, err)
}

func TestSession_ListExchange(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)

		option, _ := readOptionRequest(conn)
		if option != OptList {
			return
		}
		conn.Write(encodeReply(OptList, RepServer, serverPayload("foo", "")))
		conn.Write(encodeReply(OptList, RepServer, serverPayload("bar", "spare disk")))
		conn.Write(encodeReply(OptList, RepAck, nil))
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	req := sess.BuildListRequest()
	require.NotNil(t, req)
	require.NoError(t, sess.Send(req))

	reply, err := sess.ReceiveOptionReply()
	require.NoError(t, err)
	assert.Equal(t, uint32(RepServer), reply.Type)
	assert.Equal(t, "foo", reply.Name)

	reply, err = sess.ReceiveOptionReply()
	require.NoError(t, err)
	assert.Equal(t, "bar", reply.Name)

	reply, err = sess.ReceiveOptionReply()
	require.NoError(t, err)
	assert.Equal(t, uint32(RepAck), reply.Type)
}

func TestSession_Attach(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)

		option, payload := readOptionRequest(conn)
		if option != OptExportName || string(payload) != "disk0" {
			return
		}
		writeExportDetails(conn, 1048576,
			TransmissionFlagHasFlags|TransmissionFlagReadOnly|TransmissionFlagSendFlush)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Attach("disk0"))

	info, ok := sess.Exports().Lookup("disk0")
	require.True(t, ok)
	require.NotNil(t, info.Size)
	assert.Equal(t, uint64(1048576), *info.Size)
	assert.Equal(t, []string{"READ_ONLY", "SEND_FLUSH"}, info.Flags)
}

func TestSession_AttachWithoutFlagsMarker(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
		readOptionRequest(conn)
		writeExportDetails(conn, 2048, 0)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Attach("vol1"))

	info, _ := sess.Exports().Lookup("vol1")
	require.NotNil(t, info.Size)
	assert.Equal(t, uint64(2048), *info.Size)
	assert.False(t, info.HasFlags)
	assert.Empty(t, info.Flags)
}

func TestSession_AttachRejectedInOldstyleMode(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeOldstyleGreeting(conn, 4096, uint32(TransmissionFlagHasFlags))
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Error(t, sess.Attach("anything"))
}

func TestSession_ReconnectPreservesExports(t *testing.T) {
	first := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
		readOptionRequest(conn)
		writeExportDetails(conn, 512, 0)
	})
	second := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
		readOptionRequest(conn)
		writeExportDetails(conn, 1024, 0)
	})
	dialer := &pipeDialer{conns: []net.Conn{first, second}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Attach("a"))
	require.NoError(t, sess.Reconnect(context.Background()))

	assert.Equal(t, ModeFixedNewstyle, sess.NegotiationMode())

	// Info from before the reconnect is still there
	info, ok := sess.Exports().Lookup("a")
	require.True(t, ok)
	require.NotNil(t, info.Size)
	assert.Equal(t, uint64(512), *info.Size)

	require.NoError(t, sess.Attach("b"))
	assert.Equal(t, []string{"a", "b"}, sess.Exports().Names())
}

func TestSession_ReconnectFailsWhenDialFails(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)
	defer sess.Close()

	assert.Error(t, sess.Reconnect(context.Background()))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	sess, err := Connect(context.Background(), testConfig(dialer))
	require.NoError(t, err)

	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())
}

func TestSession_ReceiveTimesOutOnSilentServer(t *testing.T) {
	client := newScriptedServer(t, func(conn net.Conn) {
		writeNewstyleGreeting(conn, HandshakeFlagFixedNewstyle)
		// then go silent; keep the conn open past the client timeout
		time.Sleep(300 * time.Millisecond)
	})
	dialer := &pipeDialer{conns: []net.Conn{client}}

	cfg := testConfig(dialer)
	cfg.Timeout = 50 * time.Millisecond

	sess, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.ReceiveOptionReply()
	assert.Error(t, err, "a timed-out receive surfaces as an ordinary failure")
}
