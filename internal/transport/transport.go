// Package transport owns the radio link boundary.
//
// Ownership boundary:
// - slot addressing and response status codes
// - peripheral/central adapter contracts
// - in-memory loopback link for tests and the demo daemon
//
// Adapters may invoke handler callbacks from any goroutine; the protocol
// engines marshal them onto their own event loop before touching session
// state.
package transport

import "errors"

// Slot is one addressable endpoint on the advertised service.
type Slot int

const (
	SlotMetadata Slot = iota + 1 // readable, offset-paginated
	SlotData                     // notifiable, raw chunk bytes
	SlotControl                  // writable, single-byte commands
)

func (s Slot) String() string {
	switch s {
	case SlotMetadata:
		return "metadata"
	case SlotData:
		return "data"
	case SlotControl:
		return "control"
	default:
		return "unknown"
	}
}

// Status is the transport-level response code for read/write requests.
type Status byte

const (
	StatusOK            Status = 0
	StatusRejected      Status = 1
	StatusInvalidOffset Status = 2
	StatusDisconnected  Status = 3
)

// Peer identifies the currently connected remote endpoint. It is a lookup
// key, never an owned handle: the transport owns the connection lifetime and
// lookups may fail after a disconnect.
type Peer string

const PeerNone Peer = ""

var (
	ErrNotRegistered      = errors.New("transport: service not registered")
	ErrAlreadyAdvertising = errors.New("transport: already advertising")
	ErrNotAdvertising     = errors.New("transport: peer is not advertising")
	ErrLinkClosed         = errors.New("transport: link closed")
)

// PeripheralHandler receives link events on the advertising (sender) side.
// ReadRequest and WriteRequest expect a synchronous response; everything
// else is fire-and-forget.
type PeripheralHandler interface {
	PeerConnected(peer Peer)
	PeerDisconnected(peer Peer)
	PeerSubscribed(slot Slot, peer Peer)
	PeerUnsubscribed(slot Slot, peer Peer)
	ReadRequest(slot Slot, offset int, peer Peer) ([]byte, Status)
	WriteRequest(slot Slot, payload []byte, peer Peer) Status
	NotifyResult(accepted bool)
	ReadyToResume()
}

// CentralHandler receives link events on the connecting (receiver) side.
type CentralHandler interface {
	Connected(peer Peer)
	Disconnected(peer Peer)
	ReadResult(slot Slot, offset int, data []byte, status Status)
	WriteResult(slot Slot, status Status)
	Notification(slot Slot, payload []byte)
}

// Peripheral is the advertising end of the link.
type Peripheral interface {
	RegisterService(serviceID string, h PeripheralHandler) error
	Advertise(serviceID, localName string) error
	StopAdvertising()
	// Notify attempts to push one data payload to the subscribed peer. The
	// accepted-into-transport-buffer result arrives asynchronously via
	// NotifyResult; acceptance is not a delivery guarantee.
	Notify(slot Slot, payload []byte)
	MaxPayloadBytes() int
}

// Central is the connecting end of the link. Read and Write are
// fire-and-forget; completions arrive as ReadResult/WriteResult events.
type Central interface {
	Attach(h CentralHandler)
	Connect() error
	Disconnect()
	Subscribe(slot Slot)
	Unsubscribe(slot Slot)
	Read(slot Slot, offset int)
	Write(slot Slot, payload []byte)
	MaxPayloadBytes() int
}
