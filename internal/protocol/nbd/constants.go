package nbd

// Handshake magics
// These identify the negotiation style a server speaks (NBD protocol
// document, "Handshake" section).
const (
	// MagicNBD is the initial 8-byte greeting sent by every NBD server
	// ("NBDMAGIC" in ASCII)
	MagicNBD = 0x4e42444d41474943

	// MagicOption is the second magic sent by newstyle servers
	// ("IHAVEOPT" in ASCII)
	MagicOption = 0x49484156454f5054

	// MagicOldstyle is the second magic sent by oldstyle servers
	MagicOldstyle = 0x00420281861253

	// MagicOptionReply prefixes every option reply from the server
	MagicOptionReply = 0x0003e889045565a9
)

// Handshake flags
// Sent by newstyle servers as a 16-bit field right after MagicOption.
// The client echoes the bits it understands as a 32-bit field.
const (
	// HandshakeFlagFixedNewstyle indicates the server supports the fixed
	// newstyle option-reply framing
	HandshakeFlagFixedNewstyle = 1 << 0

	// HandshakeFlagNoZeroes indicates the server can skip the 124-byte
	// zero pad after an export-name reply
	HandshakeFlagNoZeroes = 1 << 1
)

// Option request codes
const (
	// OptExportName selects an export and ends negotiation
	OptExportName = 1

	// OptAbort ends negotiation without selecting an export
	OptAbort = 2

	// OptList asks the server to enumerate its export names
	OptList = 3
)

// Option reply types
const (
	// RepAck is the terminal acknowledgement of an option request
	RepAck = 1

	// RepServer carries one export name in response to OptList
	RepServer = 2

	// repErrorBit is set on every error reply type
	repErrorBit = 1 << 31
)

// maxReplyPayload bounds option-reply payloads so a hostile server cannot
// make the client allocate unbounded memory.
const maxReplyPayload = 4 << 10

// exportNamePadding is the size of the zero pad a server appends to the
// size+flags block after OptExportName when NoZeroes was not negotiated.
const exportNamePadding = 124

// Transmission flags
// A 16-bit field describing per-export capabilities, received after
// selecting an export.
const (
	// TransmissionFlagHasFlags marks the flags field as meaningful.
	// It is an internal indicator and is excluded from reported names.
	TransmissionFlagHasFlags = 1 << 0

	TransmissionFlagReadOnly        = 1 << 1
	TransmissionFlagSendFlush       = 1 << 2
	TransmissionFlagSendFUA         = 1 << 3
	TransmissionFlagRotational      = 1 << 4
	TransmissionFlagSendTrim        = 1 << 5
	TransmissionFlagSendWriteZeroes = 1 << 6
	TransmissionFlagSendDF          = 1 << 7
	TransmissionFlagCanMultiConn    = 1 << 8
	TransmissionFlagSendResize      = 1 << 9
	TransmissionFlagSendCache       = 1 << 10
	TransmissionFlagSendFastZero    = 1 << 11
)

// transmissionFlagNames maps each reportable transmission flag to its
// conventional name, in bit order. TransmissionFlagHasFlags is deliberately
// absent.
var transmissionFlagNames = []struct {
	bit  uint16
	name string
}{
	{TransmissionFlagReadOnly, "READ_ONLY"},
	{TransmissionFlagSendFlush, "SEND_FLUSH"},
	{TransmissionFlagSendFUA, "SEND_FUA"},
	{TransmissionFlagRotational, "ROTATIONAL"},
	{TransmissionFlagSendTrim, "SEND_TRIM"},
	{TransmissionFlagSendWriteZeroes, "SEND_WRITE_ZEROES"},
	{TransmissionFlagSendDF, "SEND_DF"},
	{TransmissionFlagCanMultiConn, "CAN_MULTI_CONN"},
	{TransmissionFlagSendResize, "SEND_RESIZE"},
	{TransmissionFlagSendCache, "SEND_CACHE"},
	{TransmissionFlagSendFastZero, "SEND_FAST_ZERO"},
}

// TransmissionFlagNames returns the printable names of the flags set in
// value, in bit order. The HasFlags marker is never included.
func TransmissionFlagNames(value uint16) []string {
	var names []string
	for _, f := range transmissionFlagNames {
		if value&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

// NegotiationMode classifies the handshake variant a server advertised at
// connect time.
type NegotiationMode int

const (
	// ModeUnrecognized means the greeting did not match any known
	// negotiation style
	ModeUnrecognized NegotiationMode = iota

	// ModeOldstyle is the legacy handshake with no option phase
	ModeOldstyle

	// ModeNewstyle supports options but not the fixed option-reply
	// framing; one option per connection
	ModeNewstyle

	// ModeFixedNewstyle supports full option haggling
	ModeFixedNewstyle
)

func (m NegotiationMode) String() string {
	switch m {
	case ModeUnrecognized:
		return "unrecognized"
	case ModeOldstyle:
		return "oldstyle"
	case ModeNewstyle:
		return "newstyle"
	case ModeFixedNewstyle:
		return "fixed newstyle"
	default:
		return "unknown"
	}
}
