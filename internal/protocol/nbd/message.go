package nbd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// OptionRequest is a single client option sent during newstyle negotiation.
type OptionRequest struct {
	Option uint32
	Data   []byte
}

// Encode serializes the request into its wire form:
// MagicOption, option code, payload length, payload.
func (r *OptionRequest) Encode() []byte {
	buf := make([]byte, 16+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], MagicOption)
	binary.BigEndian.PutUint32(buf[8:12], r.Option)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(r.Data)))
	copy(buf[16:], r.Data)
	return buf
}

// OptionReply is a single server reply to an option request.
//
// Name is only populated for RepServer replies; other reply types keep
// their payload opaque since the prober only needs the type tag.
type OptionReply struct {
	Option uint32
	Type   uint32
	Length uint32
	Name   string
}

// IsError reports whether the reply type carries the error bit.
func (r *OptionReply) IsError() bool {
	return r.Type&repErrorBit != 0
}

// ReadOptionReply reads and decodes one option reply from r.
func ReadOptionReply(r io.Reader) (*OptionReply, error) {
	var header [20]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read option reply header: %w", err)
	}

	if magic := binary.BigEndian.Uint64(header[0:8]); magic != MagicOptionReply {
		return nil, fmt.Errorf("invalid option reply magic 0x%x", magic)
	}

	reply := &OptionReply{
		Option: binary.BigEndian.Uint32(header[8:12]),
		Type:   binary.BigEndian.Uint32(header[12:16]),
		Length: binary.BigEndian.Uint32(header[16:20]),
	}

	if reply.Length > maxReplyPayload {
		return nil, fmt.Errorf("option reply payload too large: %d bytes", reply.Length)
	}

	payload := make([]byte, reply.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read option reply payload: %w", err)
	}

	if reply.Type == RepServer {
		name, err := decodeServerReply(payload)
		if err != nil {
			return nil, err
		}
		reply.Name = name
	}

	return reply, nil
}

// decodeServerReply extracts the export name from a RepServer payload:
// 4-byte name length, name, optional free-form description.
func decodeServerReply(payload []byte) (string, error) {
	if len(payload) < 4 {
		return "", fmt.Errorf("server reply payload too short: %d bytes", len(payload))
	}
	nameLen := binary.BigEndian.Uint32(payload[0:4])
	if int(nameLen) > len(payload)-4 {
		return "", fmt.Errorf("server reply name length %d exceeds payload", nameLen)
	}
	return string(payload[4 : 4+nameLen]), nil
}
