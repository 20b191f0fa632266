package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wardlink/signover/internal/observability"
	"github.com/wardlink/signover/internal/protocol"
	"github.com/wardlink/signover/internal/protocol/chunk"
	"github.com/wardlink/signover/internal/transport"
)

var ErrEngineClosed = errors.New("transfer: engine closed")

// SenderStatus is a point-in-time snapshot for status readers.
type SenderStatus struct {
	Role           string `json:"role"`
	State          string `json:"state"`
	SenderName     string `json:"sender_name"`
	TotalBytes     uint64 `json:"total_bytes"`
	ChunkCount     uint32 `json:"chunk_count"`
	Cursor         uint32 `json:"cursor"`
	Peer           string `json:"peer"`
	DataSubscribed bool   `json:"data_subscribed"`
}

type senderSession struct {
	meta     protocol.Metadata
	metaBlob []byte
	chunks   [][]byte
	cursor   uint32

	peer           transport.Peer
	dataSubscribed bool
	awaitingResult bool
	parked         bool

	startedAt time.Time
	progress  *ProgressLog
}

type senderMsg interface{}

type msgStart struct {
	payload    []byte
	senderName string
	reply      chan error
}

type msgCancel struct{}

type msgPeerConnected struct{ peer transport.Peer }

type msgPeerDisconnected struct{ peer transport.Peer }

type msgSubscribed struct {
	slot transport.Slot
	peer transport.Peer
}

type msgUnsubscribed struct {
	slot transport.Slot
	peer transport.Peer
}

type readReply struct {
	data   []byte
	status transport.Status
}

type msgReadRequest struct {
	slot   transport.Slot
	offset int
	peer   transport.Peer
	reply  chan readReply
}

type msgWriteRequest struct {
	slot    transport.Slot
	payload []byte
	peer    transport.Peer
	reply   chan transport.Status
}

type msgNotifyResult struct{ accepted bool }

type msgReadyToResume struct{}

type msgParkExpired struct{ seq uint64 }

// Sender owns the advertising-side transfer session. All transport callbacks
// and application calls are marshalled onto one event-loop goroutine; only
// that goroutine touches the session.
type Sender struct {
	cfg    Config
	radio  transport.Peripheral
	logger zerolog.Logger

	loop      chan senderMsg
	done      chan struct{}
	closeOnce sync.Once
	events    chan Event

	statusMu sync.RWMutex
	status   SenderStatus
	progress *ProgressLog

	// loop-owned
	state     State
	sess      *senderSession
	parkSeq   uint64
	parkTimer *time.Timer
}

func NewSender(radio transport.Peripheral, cfg Config) *Sender {
	cfg = cfg.WithDefaults()
	s := &Sender{
		cfg:    cfg,
		radio:  radio,
		logger: log.With().Str("component", "transfer.sender").Logger(),
		loop:   make(chan senderMsg, 64),
		done:   make(chan struct{}),
		events: make(chan Event, cfg.EventBuffer),
		state:  StateIdle,
		status: SenderStatus{Role: string(RoleSender), State: StateIdle.String()},
	}
	go s.run()
	return s
}

// Start advertises a new transfer, superseding any active session. The
// returned error covers local setup only; later failures arrive as events.
func (s *Sender) Start(payload []byte, senderName string) error {
	reply := make(chan error, 1)
	if !s.post(msgStart{payload: payload, senderName: senderName, reply: reply}) {
		return ErrEngineClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrEngineClosed
	}
}

// Cancel tears the active session down from the application side.
func (s *Sender) Cancel() {
	s.post(msgCancel{})
}

// Close stops the event loop with a best-effort teardown and closes the
// event stream.
func (s *Sender) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Sender) Events() <-chan Event {
	return s.events
}

func (s *Sender) Status() SenderStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Progress returns per-chunk push bookkeeping for the current session.
func (s *Sender) Progress() []ChunkAttempt {
	s.statusMu.RLock()
	p := s.progress
	s.statusMu.RUnlock()
	if p == nil {
		return []ChunkAttempt{}
	}
	return p.List()
}

// transport.PeripheralHandler implementation. Callbacks may arrive on any
// goroutine; they are posted onto the loop, blocking only for requests that
// need a synchronous response.

func (s *Sender) PeerConnected(peer transport.Peer) {
	s.post(msgPeerConnected{peer: peer})
}

func (s *Sender) PeerDisconnected(peer transport.Peer) {
	s.post(msgPeerDisconnected{peer: peer})
}

func (s *Sender) PeerSubscribed(slot transport.Slot, peer transport.Peer) {
	s.post(msgSubscribed{slot: slot, peer: peer})
}

func (s *Sender) PeerUnsubscribed(slot transport.Slot, peer transport.Peer) {
	s.post(msgUnsubscribed{slot: slot, peer: peer})
}

func (s *Sender) ReadRequest(slot transport.Slot, offset int, peer transport.Peer) ([]byte, transport.Status) {
	reply := make(chan readReply, 1)
	if !s.post(msgReadRequest{slot: slot, offset: offset, peer: peer, reply: reply}) {
		return nil, transport.StatusRejected
	}
	select {
	case r := <-reply:
		return r.data, r.status
	case <-s.done:
		return nil, transport.StatusRejected
	}
}

func (s *Sender) WriteRequest(slot transport.Slot, payload []byte, peer transport.Peer) transport.Status {
	reply := make(chan transport.Status, 1)
	if !s.post(msgWriteRequest{slot: slot, payload: payload, peer: peer, reply: reply}) {
		return transport.StatusRejected
	}
	select {
	case st := <-reply:
		return st
	case <-s.done:
		return transport.StatusRejected
	}
}

func (s *Sender) NotifyResult(accepted bool) {
	s.post(msgNotifyResult{accepted: accepted})
}

func (s *Sender) ReadyToResume() {
	s.post(msgReadyToResume{})
}

func (s *Sender) post(m senderMsg) bool {
	select {
	case s.loop <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *Sender) run() {
	for {
		select {
		case <-s.done:
			s.teardown()
			close(s.events)
			return
		case m := <-s.loop:
			s.handle(m)
		}
	}
}

func (s *Sender) handle(m senderMsg) {
	switch m := m.(type) {
	case msgStart:
		s.handleStart(m)
	case msgCancel:
		s.handleCancel()
	case msgPeerConnected:
		s.handlePeerConnected(m.peer)
	case msgPeerDisconnected:
		s.handlePeerDisconnected()
	case msgSubscribed:
		s.handleSubscribed(m)
	case msgUnsubscribed:
		s.handleUnsubscribed(m)
	case msgReadRequest:
		s.handleReadRequest(m)
	case msgWriteRequest:
		s.handleWriteRequest(m)
	case msgNotifyResult:
		s.handleNotifyResult(m.accepted)
	case msgReadyToResume:
		s.handleReadyToResume()
	case msgParkExpired:
		s.handleParkExpired(m.seq)
	}
}

func (s *Sender) handleStart(m msgStart) {
	if s.sess != nil && !s.state.Terminal() {
		s.logger.Warn().Str("state", s.state.String()).Msg("superseding active session")
		s.teardown()
	}

	chunks, err := chunk.Split(m.payload, s.radio.MaxPayloadBytes())
	if err != nil {
		m.reply <- err
		return
	}
	meta := protocol.Metadata{
		TotalBytes: uint64(len(m.payload)),
		ChunkCount: uint32(len(chunks)),
		SenderName: m.senderName,
	}
	blob, err := protocol.EncodeMetadata(meta)
	if err != nil {
		m.reply <- err
		return
	}

	s.sess = &senderSession{
		meta:      meta,
		metaBlob:  blob,
		chunks:    chunks,
		startedAt: time.Now(),
		progress:  NewProgressLog(),
	}
	s.statusMu.Lock()
	s.progress = s.sess.progress
	s.statusMu.Unlock()
	s.setState(StatePreparing)
	s.logger.Info().
		Str("sender_name", meta.SenderName).
		Uint64("total_bytes", meta.TotalBytes).
		Uint32("chunk_count", meta.ChunkCount).
		Msg("session prepared")

	if err := s.radio.RegisterService(s.cfg.ServiceID, s); err != nil {
		err = fmt.Errorf("%w: register service: %v", protocol.ErrTransport, err)
		s.fail(err)
		m.reply <- err
		return
	}
	if err := s.radio.Advertise(s.cfg.ServiceID, m.senderName); err != nil {
		err = classifyRadioError(err, "advertise")
		s.fail(err)
		m.reply <- err
		return
	}
	s.setState(StateAdvertising)
	m.reply <- nil
}

func (s *Sender) handleCancel() {
	if s.sess == nil || s.state.Terminal() {
		return
	}
	s.stop("application cancel")
}

// stop tears down into Cancelled and emits the "stopped" state event.
func (s *Sender) stop(cause string) {
	s.logger.Info().Str("cause", cause).Msg("session stopped")
	s.teardown()
	s.setState(StateCancelled)
	s.emit(Event{Kind: EventStateChanged, Name: "stopped"})
	observability.RecordSessionOutcome(string(RoleSender), "cancelled")
}

func (s *Sender) handlePeerConnected(peer transport.Peer) {
	if s.sess == nil || s.state.Terminal() || s.state != StateAdvertising {
		return
	}
	s.cancelParkTimer()
	s.sess.peer = peer
	s.sess.parked = false
	s.setState(StateConnected)
}

func (s *Sender) handlePeerDisconnected() {
	if s.sess == nil || s.state.Terminal() {
		return
	}
	switch s.state {
	case StateConnected, StateStreaming, StatePaused:
		s.sess.peer = transport.PeerNone
		s.sess.dataSubscribed = false
		s.sess.awaitingResult = false
		s.sess.parked = true
		s.emit(Event{Kind: EventStateChanged, Name: "disconnected"})
		// Park on the live advertising context; a retrying peer restarts
		// the stream from chunk 0.
		s.setState(StateAdvertising)
		s.scheduleParkTimer()
	}
}

func (s *Sender) handleSubscribed(m msgSubscribed) {
	if s.sess == nil || s.state.Terminal() {
		return
	}
	if m.slot != transport.SlotData {
		return
	}
	s.sess.dataSubscribed = true
	if s.state == StateConnected {
		s.beginStreaming()
	} else {
		s.updateStatus()
	}
}

func (s *Sender) handleUnsubscribed(m msgUnsubscribed) {
	if s.sess == nil || m.slot != transport.SlotData {
		return
	}
	s.sess.dataSubscribed = false
	s.updateStatus()
}

func (s *Sender) handleReadRequest(m msgReadRequest) {
	if s.sess == nil || m.slot != transport.SlotMetadata {
		m.reply <- readReply{status: transport.StatusRejected}
		return
	}
	data, err := protocol.Slice(s.sess.metaBlob, m.offset, s.radio.MaxPayloadBytes())
	if err != nil {
		m.reply <- readReply{status: transport.StatusInvalidOffset}
		return
	}
	m.reply <- readReply{data: data, status: transport.StatusOK}
}

func (s *Sender) handleWriteRequest(m msgWriteRequest) {
	cmd, ok := protocol.ParseCommand(m.payload)
	// Unknown or malformed control payloads are acknowledged but ignored.
	m.reply <- transport.StatusOK
	if m.slot != transport.SlotControl {
		return
	}
	if !ok {
		s.logger.Debug().Int("len", len(m.payload)).Msg("ignoring unknown control payload")
		return
	}
	observability.RecordControlCommand(string(RoleSender), cmd.String())
	if s.sess == nil || s.state.Terminal() {
		return
	}

	switch cmd {
	case protocol.CmdStart:
		// START begins streaming from Connected. A duplicate START while
		// already streaming is ignored: restarting mid-flight would
		// duplicate chunks the transport has already queued. A genuine
		// restart always passes through Connected again after a disconnect.
		if s.state == StateConnected {
			s.beginStreaming()
		} else {
			s.logger.Debug().Str("state", s.state.String()).Msg("ignoring start command")
		}
	case protocol.CmdAck:
		// ACK is a resend trigger for the current cursor chunk, never an
		// acknowledgment that advances it.
		switch s.state {
		case StatePaused:
			s.setState(StateStreaming)
			s.sendCurrent()
		case StateStreaming:
			if !s.sess.awaitingResult {
				s.sendCurrent()
			}
		}
	case protocol.CmdCancel:
		s.stop("peer cancel")
	case protocol.CmdComplete:
		s.logger.Info().Msg("peer reported completion")
	case protocol.CmdRetry:
		s.logger.Debug().Msg("retry command is reserved, ignoring")
	}
}

func (s *Sender) handleNotifyResult(accepted bool) {
	if s.sess == nil || !s.sess.awaitingResult {
		return
	}
	s.sess.awaitingResult = false
	s.sess.progress.MarkResult(s.sess.cursor, accepted)
	observability.RecordNotifyAttempt(accepted)

	if s.state != StateStreaming {
		return
	}
	if accepted {
		s.sess.cursor++
		s.updateStatus()
		s.pump()
		return
	}
	s.setState(StatePaused)
}

func (s *Sender) handleReadyToResume() {
	if s.sess == nil || s.state != StatePaused {
		return
	}
	s.setState(StateStreaming)
	s.sendCurrent()
}

func (s *Sender) beginStreaming() {
	s.sess.cursor = 0
	s.sess.awaitingResult = false
	s.setState(StateStreaming)
	s.pump()
}

func (s *Sender) pump() {
	if s.sess.cursor >= s.sess.meta.ChunkCount {
		s.completeSession()
		return
	}
	s.sendCurrent()
}

func (s *Sender) sendCurrent() {
	sess := s.sess
	c := sess.chunks[sess.cursor]
	sess.awaitingResult = true
	sess.progress.MarkAttempt(sess.cursor, time.Now())
	s.logger.Debug().
		Uint32("cursor", sess.cursor).
		Int("bytes", len(c)).
		Msg("pushing chunk")
	s.radio.Notify(transport.SlotData, c)
}

func (s *Sender) completeSession() {
	sess := s.sess
	s.teardown()
	s.setState(StateComplete)
	s.emit(Event{Kind: EventTransferComplete})
	observability.RecordSessionOutcome(string(RoleSender), "complete")
	observability.RecordTransfer(string(RoleSender), int(sess.meta.TotalBytes), time.Since(sess.startedAt))
	s.logger.Info().
		Uint64("total_bytes", sess.meta.TotalBytes).
		Uint32("chunk_count", sess.meta.ChunkCount).
		Msg("transfer complete")
}

func (s *Sender) fail(err error) {
	s.logger.Error().Err(err).Msg("session failed")
	s.teardown()
	s.setState(StateFailed)
	s.emit(Event{Kind: EventError, Err: err})
	observability.RecordSessionOutcome(string(RoleSender), "failed")
}

func (s *Sender) handleParkExpired(seq uint64) {
	if seq != s.parkSeq {
		return
	}
	if s.sess == nil || s.state != StateAdvertising || !s.sess.parked {
		return
	}
	s.fail(fmt.Errorf("%w: parked session expired after %s", protocol.ErrTransport, s.cfg.ParkTimeout))
}

func (s *Sender) scheduleParkTimer() {
	if s.cfg.ParkTimeout <= 0 {
		return
	}
	s.cancelParkTimer()
	seq := s.parkSeq
	s.parkTimer = time.AfterFunc(s.cfg.ParkTimeout, func() {
		s.post(msgParkExpired{seq: seq})
	})
}

func (s *Sender) cancelParkTimer() {
	s.parkSeq++
	if s.parkTimer != nil {
		s.parkTimer.Stop()
		s.parkTimer = nil
	}
}

func (s *Sender) teardown() {
	s.cancelParkTimer()
	s.radio.StopAdvertising()
	if s.sess != nil {
		s.sess.peer = transport.PeerNone
		s.sess.dataSubscribed = false
		s.sess.awaitingResult = false
	}
}

func (s *Sender) setState(st State) {
	prev := s.state
	s.state = st
	s.updateStatus()
	if prev != st {
		s.logger.Debug().
			Str("from", prev.String()).
			Str("to", st.String()).
			Msg("state transition")
		s.emit(Event{Kind: EventStateChanged, Name: st.String()})
	}
}

func (s *Sender) updateStatus() {
	st := SenderStatus{
		Role:  string(RoleSender),
		State: s.state.String(),
	}
	if s.sess != nil {
		st.SenderName = s.sess.meta.SenderName
		st.TotalBytes = s.sess.meta.TotalBytes
		st.ChunkCount = s.sess.meta.ChunkCount
		st.Cursor = s.sess.cursor
		st.Peer = string(s.sess.peer)
		st.DataSubscribed = s.sess.dataSubscribed
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func (s *Sender) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn().Str("kind", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}

func classifyRadioError(err error, op string) error {
	if errors.Is(err, protocol.ErrPermission) ||
		errors.Is(err, protocol.ErrConfiguration) ||
		errors.Is(err, protocol.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", protocol.ErrTransport, op, err)
}
