package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// LoopbackConfig shapes the in-memory link.
type LoopbackConfig struct {
	MaxPayloadBytes int
	NotifyBuffer    int
	AutoDrain       bool
	DrainInterval   time.Duration
}

// Loopback link defaults tuned to look like a small negotiated radio MTU.
func DefaultLoopbackConfig() LoopbackConfig {
	return LoopbackConfig{
		MaxPayloadBytes: 100,
		NotifyBuffer:    4,
		AutoDrain:       false,
		DrainInterval:   2 * time.Millisecond,
	}
}

func (c LoopbackConfig) WithDefaults() LoopbackConfig {
	d := DefaultLoopbackConfig()
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = d.MaxPayloadBytes
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = d.NotifyBuffer
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	return c
}

type queuedNotify struct {
	slot    Slot
	payload []byte
}

// Loopback is an in-memory point-to-point link wiring one peripheral end to
// one central end. It serializes each side's callbacks on a dedicated
// dispatch goroutine, standing in for the platform radio thread, and models
// backpressure with a bounded notify buffer.
type Loopback struct {
	cfg LoopbackConfig

	mu           sync.Mutex
	serviceID    string
	localName    string
	advertising  bool
	advertiseErr error
	connected    bool
	peer         Peer
	subs         map[Slot]bool
	pHandler     PeripheralHandler
	cHandler     CentralHandler

	notifyQ []queuedNotify
	starved bool

	pDispatch chan func()
	cDispatch chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func NewLoopback(cfg LoopbackConfig) *Loopback {
	l := &Loopback{
		cfg:       cfg.WithDefaults(),
		subs:      make(map[Slot]bool),
		pDispatch: make(chan func(), 256),
		cDispatch: make(chan func(), 256),
		done:      make(chan struct{}),
	}
	go l.dispatch(l.pDispatch)
	go l.dispatch(l.cDispatch)
	if l.cfg.AutoDrain {
		go l.autoDrain()
	}
	return l
}

func (l *Loopback) dispatch(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		case <-l.done:
			return
		}
	}
}

func (l *Loopback) autoDrain() {
	ticker := time.NewTicker(l.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Drain(1)
		case <-l.done:
			return
		}
	}
}

// Close stops both dispatchers. Pending callbacks may be dropped.
func (l *Loopback) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Loopback) postP(fn func()) {
	select {
	case l.pDispatch <- fn:
	case <-l.done:
	}
}

func (l *Loopback) postC(fn func()) {
	select {
	case l.cDispatch <- fn:
	case <-l.done:
	}
}

// SetAdvertiseError injects a failure for the next Advertise call. Tests use
// this to exercise the Preparing->Failed path.
func (l *Loopback) SetAdvertiseError(err error) {
	l.mu.Lock()
	l.advertiseErr = err
	l.mu.Unlock()
}

// DropLink severs the connection from the transport side, as a radio-range
// loss would. Advertising state is untouched so a retrying peer can come
// back on the same context.
func (l *Loopback) DropLink() {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	peer := l.peer
	l.connected = false
	l.peer = PeerNone
	l.subs = make(map[Slot]bool)
	l.notifyQ = nil
	l.starved = false
	ph, ch := l.pHandler, l.cHandler
	l.mu.Unlock()

	log.Debug().Str("peer", string(peer)).Msg("loopback link dropped")
	if ph != nil {
		l.postP(func() { ph.PeerDisconnected(peer) })
	}
	if ch != nil {
		l.postC(func() { ch.Disconnected(peer) })
	}
}

// Drain delivers up to n buffered notifications to the central side and
// signals ready-to-resume once a previously rejected sender has room again.
// It returns how many notifications were delivered.
func (l *Loopback) Drain(n int) int {
	l.mu.Lock()
	delivered := 0
	var out []queuedNotify
	for delivered < n && len(l.notifyQ) > 0 {
		out = append(out, l.notifyQ[0])
		l.notifyQ = l.notifyQ[1:]
		delivered++
	}
	resume := l.starved && delivered > 0 && len(l.notifyQ) < l.cfg.NotifyBuffer
	if resume {
		l.starved = false
	}
	ph, ch := l.pHandler, l.cHandler
	connected := l.connected
	l.mu.Unlock()

	if ch != nil && connected {
		for _, qn := range out {
			qn := qn
			l.postC(func() { ch.Notification(qn.slot, qn.payload) })
		}
	}
	if resume && ph != nil {
		l.postP(func() { ph.ReadyToResume() })
	}
	return delivered
}

// Buffered reports how many notifications sit undelivered in the link.
func (l *Loopback) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.notifyQ)
}

// Peripheral returns the advertising end of the link.
func (l *Loopback) Peripheral() Peripheral { return (*loopbackPeripheral)(l) }

// Central returns the connecting end of the link.
func (l *Loopback) Central() Central { return (*loopbackCentral)(l) }

type loopbackPeripheral Loopback

func (p *loopbackPeripheral) RegisterService(serviceID string, h PeripheralHandler) error {
	l := (*Loopback)(p)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.serviceID = serviceID
	l.pHandler = h
	return nil
}

func (p *loopbackPeripheral) Advertise(serviceID, localName string) error {
	l := (*Loopback)(p)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pHandler == nil || l.serviceID != serviceID {
		return ErrNotRegistered
	}
	if l.advertiseErr != nil {
		err := l.advertiseErr
		l.advertiseErr = nil
		return err
	}
	if l.advertising {
		return ErrAlreadyAdvertising
	}
	l.advertising = true
	l.localName = localName
	return nil
}

func (p *loopbackPeripheral) StopAdvertising() {
	l := (*Loopback)(p)
	l.mu.Lock()
	l.advertising = false
	l.mu.Unlock()
}

func (p *loopbackPeripheral) Notify(slot Slot, payload []byte) {
	l := (*Loopback)(p)
	buf := make([]byte, len(payload))
	copy(buf, payload)

	l.mu.Lock()
	ph := l.pHandler
	accepted := false
	if l.connected && l.subs[slot] && len(l.notifyQ) < l.cfg.NotifyBuffer {
		l.notifyQ = append(l.notifyQ, queuedNotify{slot: slot, payload: buf})
		accepted = true
	} else {
		l.starved = true
	}
	l.mu.Unlock()

	if ph != nil {
		l.postP(func() { ph.NotifyResult(accepted) })
	}
}

func (p *loopbackPeripheral) MaxPayloadBytes() int {
	return (*Loopback)(p).cfg.MaxPayloadBytes
}

type loopbackCentral Loopback

func (c *loopbackCentral) Attach(h CentralHandler) {
	l := (*Loopback)(c)
	l.mu.Lock()
	l.cHandler = h
	l.mu.Unlock()
}

func (c *loopbackCentral) Connect() error {
	l := (*Loopback)(c)
	l.mu.Lock()
	if l.cHandler == nil {
		l.mu.Unlock()
		return ErrNotRegistered
	}
	if !l.advertising {
		l.mu.Unlock()
		return ErrNotAdvertising
	}
	if l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = true
	l.peer = Peer("central." + l.localName)
	peer := l.peer
	ph, ch := l.pHandler, l.cHandler
	l.mu.Unlock()

	if ph != nil {
		l.postP(func() { ph.PeerConnected(peer) })
	}
	l.postC(func() { ch.Connected(peer) })
	return nil
}

func (c *loopbackCentral) Disconnect() {
	(*Loopback)(c).DropLink()
}

func (c *loopbackCentral) Subscribe(slot Slot) {
	l := (*Loopback)(c)
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.subs[slot] = true
	peer := l.peer
	ph := l.pHandler
	l.mu.Unlock()

	if ph != nil {
		l.postP(func() { ph.PeerSubscribed(slot, peer) })
	}
}

func (c *loopbackCentral) Unsubscribe(slot Slot) {
	l := (*Loopback)(c)
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	delete(l.subs, slot)
	peer := l.peer
	ph := l.pHandler
	l.mu.Unlock()

	if ph != nil {
		l.postP(func() { ph.PeerUnsubscribed(slot, peer) })
	}
}

func (c *loopbackCentral) Read(slot Slot, offset int) {
	l := (*Loopback)(c)
	l.mu.Lock()
	connected := l.connected
	peer := l.peer
	ph, ch := l.pHandler, l.cHandler
	l.mu.Unlock()

	if ch == nil {
		return
	}
	if !connected || ph == nil {
		l.postC(func() { ch.ReadResult(slot, offset, nil, StatusDisconnected) })
		return
	}
	l.postP(func() {
		data, status := ph.ReadRequest(slot, offset, peer)
		l.postC(func() { ch.ReadResult(slot, offset, data, status) })
	})
}

func (c *loopbackCentral) Write(slot Slot, payload []byte) {
	l := (*Loopback)(c)
	buf := make([]byte, len(payload))
	copy(buf, payload)

	l.mu.Lock()
	connected := l.connected
	peer := l.peer
	ph, ch := l.pHandler, l.cHandler
	l.mu.Unlock()

	if ch == nil {
		return
	}
	if !connected || ph == nil {
		l.postC(func() { ch.WriteResult(slot, StatusDisconnected) })
		return
	}
	l.postP(func() {
		status := ph.WriteRequest(slot, buf, peer)
		l.postC(func() { ch.WriteResult(slot, status) })
	})
}

func (c *loopbackCentral) MaxPayloadBytes() int {
	return (*Loopback)(c).cfg.MaxPayloadBytes
}
