package transfer

// Role marks which side of the link owns a session.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// State enumerates session lifecycle phases. The sender walks
// Idle -> Preparing -> Advertising -> Connected -> Streaming <-> Paused ->
// Complete; the receiver mirror walks Idle -> Connecting -> ReadingMetadata
// -> Receiving -> Complete. Cancelled and Failed are reachable from any
// non-terminal state on either side.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateAdvertising
	StateConnected
	StateStreaming
	StatePaused
	StateConnecting
	StateReadingMetadata
	StateReceiving
	StateComplete
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateAdvertising:
		return "advertising"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused_for_backpressure"
	case StateConnecting:
		return "connecting"
	case StateReadingMetadata:
		return "reading_metadata"
	case StateReceiving:
		return "receiving"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a session in this state can only be superseded.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}
