package transfer

// EventKind tags one entry on the application-facing event stream.
type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventError
	EventTransferComplete
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	case EventTransferComplete:
		return "transfer_complete"
	default:
		return "unknown"
	}
}

// Event is one application-facing notification. Name carries the state name
// for state changes ("stopped" after a processed cancel, "disconnected" on
// peer loss); Payload carries the reassembled bytes on the receiver's
// transfer-complete event.
type Event struct {
	Kind    EventKind
	Name    string
	Err     error
	Payload []byte
}
