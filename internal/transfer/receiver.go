package transfer

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wardlink/signover/internal/observability"
	"github.com/wardlink/signover/internal/protocol"
	"github.com/wardlink/signover/internal/protocol/chunk"
	"github.com/wardlink/signover/internal/transport"
)

// ReceiverStatus is a point-in-time snapshot for status readers.
type ReceiverStatus struct {
	Role       string `json:"role"`
	State      string `json:"state"`
	SenderName string `json:"sender_name"`
	TotalBytes uint64 `json:"total_bytes"`
	ChunkCount uint32 `json:"chunk_count"`
	Received   uint32 `json:"received"`
	Peer       string `json:"peer"`
}

type receiverSession struct {
	peer transport.Peer

	metaBuf  []byte
	meta     protocol.Metadata
	haveMeta bool
	asm      *chunk.Reassembler

	connectAttempts int
	readAttempts    int
	parked          bool
	startedAt       time.Time
}

type receiverMsg interface{}

type rmsgStart struct{ reply chan error }

type rmsgCancel struct{}

type rmsgConnected struct{ peer transport.Peer }

type rmsgDisconnected struct{ peer transport.Peer }

type rmsgReadResult struct {
	slot   transport.Slot
	offset int
	data   []byte
	status transport.Status
}

type rmsgWriteResult struct {
	slot   transport.Slot
	status transport.Status
}

type rmsgNotification struct {
	slot    transport.Slot
	payload []byte
}

type rmsgConnectAttempt struct {
	seq     uint64
	attempt int
}

type rmsgReadRetry struct{ seq uint64 }

type rmsgParkExpired struct{ seq uint64 }

// Receiver mirrors the sender's session on the connecting side: read the
// metadata blob through offset-paginated reads, subscribe, issue START,
// accumulate notified chunks, finalize, and issue COMPLETE.
type Receiver struct {
	cfg    Config
	radio  transport.Central
	logger zerolog.Logger
	rng    *rand.Rand

	loop      chan receiverMsg
	done      chan struct{}
	closeOnce sync.Once
	events    chan Event

	statusMu sync.RWMutex
	status   ReceiverStatus

	// loop-owned
	state      State
	sess       *receiverSession
	connectSeq uint64
	readSeq    uint64
	parkSeq    uint64
	parkTimer  *time.Timer
}

func NewReceiver(radio transport.Central, cfg Config) *Receiver {
	cfg = cfg.WithDefaults()
	r := &Receiver{
		cfg:    cfg,
		radio:  radio,
		logger: log.With().Str("component", "transfer.receiver").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		loop:   make(chan receiverMsg, 64),
		done:   make(chan struct{}),
		events: make(chan Event, cfg.EventBuffer),
		state:  StateIdle,
		status: ReceiverStatus{Role: string(RoleReceiver), State: StateIdle.String()},
	}
	radio.Attach(r)
	go r.run()
	return r
}

// Start connects to an advertised session, superseding any active one.
func (r *Receiver) Start() error {
	reply := make(chan error, 1)
	if !r.post(rmsgStart{reply: reply}) {
		return ErrEngineClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrEngineClosed
	}
}

// Cancel aborts the transfer, telling the sender via CANCEL.
func (r *Receiver) Cancel() {
	r.post(rmsgCancel{})
}

func (r *Receiver) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Receiver) Events() <-chan Event {
	return r.events
}

func (r *Receiver) Status() ReceiverStatus {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

// transport.CentralHandler implementation.

func (r *Receiver) Connected(peer transport.Peer) {
	r.post(rmsgConnected{peer: peer})
}

func (r *Receiver) Disconnected(peer transport.Peer) {
	r.post(rmsgDisconnected{peer: peer})
}

func (r *Receiver) ReadResult(slot transport.Slot, offset int, data []byte, status transport.Status) {
	r.post(rmsgReadResult{slot: slot, offset: offset, data: data, status: status})
}

func (r *Receiver) WriteResult(slot transport.Slot, status transport.Status) {
	r.post(rmsgWriteResult{slot: slot, status: status})
}

func (r *Receiver) Notification(slot transport.Slot, payload []byte) {
	r.post(rmsgNotification{slot: slot, payload: payload})
}

func (r *Receiver) post(m receiverMsg) bool {
	select {
	case r.loop <- m:
		return true
	case <-r.done:
		return false
	}
}

func (r *Receiver) run() {
	for {
		select {
		case <-r.done:
			r.teardown()
			close(r.events)
			return
		case m := <-r.loop:
			r.handle(m)
		}
	}
}

func (r *Receiver) handle(m receiverMsg) {
	switch m := m.(type) {
	case rmsgStart:
		r.handleStart(m)
	case rmsgCancel:
		r.handleCancel()
	case rmsgConnected:
		r.handleConnected(m.peer)
	case rmsgDisconnected:
		r.handleDisconnected()
	case rmsgReadResult:
		r.handleReadResult(m)
	case rmsgWriteResult:
		r.handleWriteResult(m)
	case rmsgNotification:
		r.handleNotification(m)
	case rmsgConnectAttempt:
		r.handleConnectAttempt(m)
	case rmsgReadRetry:
		r.handleReadRetry(m)
	case rmsgParkExpired:
		r.handleParkExpired(m.seq)
	}
}

func (r *Receiver) handleStart(m rmsgStart) {
	if r.sess != nil && !r.state.Terminal() {
		r.logger.Warn().Str("state", r.state.String()).Msg("superseding active session")
		r.teardown()
	}
	r.sess = &receiverSession{startedAt: time.Now()}
	r.setState(StateConnecting)
	r.tryConnect(1)
	m.reply <- nil
}

func (r *Receiver) handleCancel() {
	if r.sess == nil || r.state.Terminal() {
		return
	}
	r.radio.Write(transport.SlotControl, protocol.EncodeCommand(protocol.CmdCancel))
	observability.RecordControlCommand(string(RoleReceiver), protocol.CmdCancel.String())
	r.logger.Info().Msg("session cancelled")
	r.teardown()
	r.setState(StateCancelled)
	r.emit(Event{Kind: EventStateChanged, Name: "stopped"})
	observability.RecordSessionOutcome(string(RoleReceiver), "cancelled")
}

func (r *Receiver) tryConnect(attempt int) {
	r.sess.connectAttempts = attempt
	err := r.radio.Connect()
	if err == nil {
		// Connected event follows from the adapter.
		return
	}
	if attempt >= r.cfg.MaxConnectAttempts {
		r.fail(fmt.Errorf("%w: connect failed after %d attempts: %v", protocol.ErrTransport, attempt, err))
		return
	}
	delay := NextBackoffDelay(r.cfg.Backoff, attempt, r.rng)
	r.logger.Debug().
		Int("attempt", attempt).
		Dur("retry_in", delay).
		Msg("connect attempt failed")
	r.connectSeq++
	seq := r.connectSeq
	time.AfterFunc(delay, func() {
		r.post(rmsgConnectAttempt{seq: seq, attempt: attempt + 1})
	})
}

func (r *Receiver) handleConnectAttempt(m rmsgConnectAttempt) {
	if m.seq != r.connectSeq || r.sess == nil || r.state != StateConnecting {
		return
	}
	r.tryConnect(m.attempt)
}

func (r *Receiver) handleConnected(peer transport.Peer) {
	if r.sess == nil || r.state.Terminal() || r.state != StateConnecting {
		return
	}
	r.cancelParkTimer()
	r.sess.peer = peer
	r.sess.parked = false
	r.beginMetadataRead()
}

func (r *Receiver) beginMetadataRead() {
	r.sess.metaBuf = nil
	r.sess.haveMeta = false
	r.sess.asm = nil
	r.sess.readAttempts = 0
	r.setState(StateReadingMetadata)
	r.radio.Read(transport.SlotMetadata, 0)
}

func (r *Receiver) handleReadResult(m rmsgReadResult) {
	if r.sess == nil || r.state != StateReadingMetadata || m.slot != transport.SlotMetadata {
		return
	}
	if m.status != transport.StatusOK {
		r.sess.readAttempts++
		if r.sess.readAttempts >= r.cfg.MaxReadAttempts {
			r.fail(fmt.Errorf("%w: metadata read failed with status %d", protocol.ErrTransport, m.status))
			return
		}
		delay := NextBackoffDelay(r.cfg.Backoff, r.sess.readAttempts, r.rng)
		r.readSeq++
		seq := r.readSeq
		time.AfterFunc(delay, func() {
			r.post(rmsgReadRetry{seq: seq})
		})
		return
	}
	if m.offset != len(r.sess.metaBuf) {
		// Stale completion from a superseded read.
		return
	}
	r.sess.metaBuf = append(r.sess.metaBuf, m.data...)
	if len(m.data) == r.radio.MaxPayloadBytes() {
		// The blob may extend past this window; keep paginating.
		r.radio.Read(transport.SlotMetadata, len(r.sess.metaBuf))
		return
	}
	r.finishMetadataRead()
}

func (r *Receiver) handleReadRetry(m rmsgReadRetry) {
	if m.seq != r.readSeq || r.sess == nil || r.state != StateReadingMetadata {
		return
	}
	r.radio.Read(transport.SlotMetadata, len(r.sess.metaBuf))
}

func (r *Receiver) finishMetadataRead() {
	meta, err := protocol.DecodeMetadata(r.sess.metaBuf)
	if err != nil {
		r.fail(err)
		return
	}
	r.sess.meta = meta
	r.sess.haveMeta = true
	r.sess.asm = chunk.NewReassembler(meta)
	r.logger.Info().
		Str("sender_name", meta.SenderName).
		Uint64("total_bytes", meta.TotalBytes).
		Uint32("chunk_count", meta.ChunkCount).
		Msg("metadata read")

	r.radio.Subscribe(transport.SlotData)
	r.radio.Write(transport.SlotControl, protocol.EncodeCommand(protocol.CmdStart))
	observability.RecordControlCommand(string(RoleReceiver), protocol.CmdStart.String())
	r.setState(StateReceiving)
	if r.sess.asm.IsComplete() {
		// Zero-chunk transfer completes without a single notification.
		r.finishTransfer()
	}
}

func (r *Receiver) handleNotification(m rmsgNotification) {
	if r.sess == nil || r.state != StateReceiving || m.slot != transport.SlotData {
		return
	}
	if err := r.sess.asm.Add(m.payload); err != nil {
		r.radio.Write(transport.SlotControl, protocol.EncodeCommand(protocol.CmdCancel))
		r.fail(err)
		return
	}
	r.updateStatus()
	if r.sess.asm.IsComplete() {
		r.finishTransfer()
		return
	}
	if r.cfg.SendAcks {
		r.radio.Write(transport.SlotControl, protocol.EncodeCommand(protocol.CmdAck))
		observability.RecordControlCommand(string(RoleReceiver), protocol.CmdAck.String())
	}
}

func (r *Receiver) finishTransfer() {
	payload, err := r.sess.asm.Finalize()
	if err != nil {
		r.fail(err)
		return
	}
	r.radio.Write(transport.SlotControl, protocol.EncodeCommand(protocol.CmdComplete))
	observability.RecordControlCommand(string(RoleReceiver), protocol.CmdComplete.String())
	sess := r.sess
	r.teardown()
	r.setState(StateComplete)
	r.emit(Event{Kind: EventTransferComplete, Payload: payload})
	observability.RecordSessionOutcome(string(RoleReceiver), "complete")
	observability.RecordTransfer(string(RoleReceiver), len(payload), time.Since(sess.startedAt))
	r.logger.Info().
		Str("sender_name", sess.meta.SenderName).
		Int("bytes", len(payload)).
		Msg("transfer complete")
}

func (r *Receiver) handleWriteResult(m rmsgWriteResult) {
	if m.status != transport.StatusOK {
		r.logger.Warn().
			Str("slot", m.slot.String()).
			Uint8("status", uint8(m.status)).
			Msg("control write rejected")
	}
}

func (r *Receiver) handleDisconnected() {
	if r.sess == nil || r.state.Terminal() {
		return
	}
	switch r.state {
	case StateReadingMetadata, StateReceiving:
		// Partial progress is discarded; a reconnect performs a full
		// restart from chunk 0.
		r.sess.peer = transport.PeerNone
		r.sess.metaBuf = nil
		r.sess.asm = nil
		r.sess.haveMeta = false
		r.sess.parked = true
		r.emit(Event{Kind: EventStateChanged, Name: "disconnected"})
		r.setState(StateConnecting)
		r.scheduleParkTimer()
		r.tryConnect(1)
	}
}

func (r *Receiver) handleParkExpired(seq uint64) {
	if seq != r.parkSeq {
		return
	}
	if r.sess == nil || !r.sess.parked || r.state.Terminal() {
		return
	}
	r.fail(fmt.Errorf("%w: parked session expired after %s", protocol.ErrTransport, r.cfg.ParkTimeout))
}

func (r *Receiver) scheduleParkTimer() {
	if r.cfg.ParkTimeout <= 0 {
		return
	}
	r.cancelParkTimer()
	seq := r.parkSeq
	r.parkTimer = time.AfterFunc(r.cfg.ParkTimeout, func() {
		r.post(rmsgParkExpired{seq: seq})
	})
}

func (r *Receiver) cancelParkTimer() {
	r.parkSeq++
	if r.parkTimer != nil {
		r.parkTimer.Stop()
		r.parkTimer = nil
	}
}

func (r *Receiver) fail(err error) {
	r.logger.Error().Err(err).Msg("session failed")
	r.teardown()
	r.setState(StateFailed)
	r.emit(Event{Kind: EventError, Err: err})
	observability.RecordSessionOutcome(string(RoleReceiver), "failed")
}

func (r *Receiver) teardown() {
	r.cancelParkTimer()
	r.connectSeq++
	r.readSeq++
	r.radio.Unsubscribe(transport.SlotData)
	r.radio.Disconnect()
	if r.sess != nil {
		r.sess.peer = transport.PeerNone
	}
}

func (r *Receiver) setState(st State) {
	prev := r.state
	r.state = st
	r.updateStatus()
	if prev != st {
		r.logger.Debug().
			Str("from", prev.String()).
			Str("to", st.String()).
			Msg("state transition")
		r.emit(Event{Kind: EventStateChanged, Name: st.String()})
	}
}

func (r *Receiver) updateStatus() {
	st := ReceiverStatus{
		Role:  string(RoleReceiver),
		State: r.state.String(),
	}
	if r.sess != nil {
		st.Peer = string(r.sess.peer)
		if r.sess.haveMeta {
			st.SenderName = r.sess.meta.SenderName
			st.TotalBytes = r.sess.meta.TotalBytes
			st.ChunkCount = r.sess.meta.ChunkCount
		}
		if r.sess.asm != nil {
			st.Received = r.sess.asm.Received()
		}
	}
	r.statusMu.Lock()
	r.status = st
	r.statusMu.Unlock()
}

func (r *Receiver) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn().Str("kind", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}
