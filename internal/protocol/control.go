package protocol

// Command is one control slot opcode. The control payload is exactly one
// byte; anything longer, shorter, or outside the vocabulary is acknowledged
// at the transport level but triggers no state transition.
type Command byte

const (
	CmdStart    Command = 0x01
	CmdAck      Command = 0x02
	CmdRetry    Command = 0x03 // reserved, unused by the current machines
	CmdComplete Command = 0x04
	CmdCancel   Command = 0x05
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdAck:
		return "ack"
	case CmdRetry:
		return "retry"
	case CmdComplete:
		return "complete"
	case CmdCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ParseCommand decodes a control slot write. ok is false for empty,
// oversized, or out-of-vocabulary payloads.
func ParseCommand(payload []byte) (Command, bool) {
	if len(payload) != 1 {
		return 0, false
	}
	c := Command(payload[0])
	switch c {
	case CmdStart, CmdAck, CmdRetry, CmdComplete, CmdCancel:
		return c, true
	default:
		return 0, false
	}
}

// EncodeCommand renders the single-byte control payload.
func EncodeCommand(c Command) []byte {
	return []byte{byte(c)}
}
