package transfer

import (
	"bytes"
	"testing"
	"time"

	"github.com/wardlink/signover/internal/testutil/testlog"
	"github.com/wardlink/signover/internal/transport"
)

func TestLoopbackEndToEndTransfer(t *testing.T) {
	testlog.Start(t)
	link := transport.NewLoopback(transport.LoopbackConfig{
		MaxPayloadBytes: 64,
		NotifyBuffer:    4,
		AutoDrain:       true,
		DrainInterval:   time.Millisecond,
	})
	defer link.Close()

	sender := NewSender(link.Peripheral(), fastConfig())
	defer sender.Close()
	receiver := NewReceiver(link.Central(), fastConfig())
	defer receiver.Close()
	senderLog := collectEvents(sender.Events())
	receiverLog := collectEvents(receiver.Events())

	payload := testPayload(1000)
	if err := sender.Start(payload, "Night Shift"); err != nil {
		t.Fatalf("sender start: %v", err)
	}
	if err := receiver.Start(); err != nil {
		t.Fatalf("receiver start: %v", err)
	}

	waitFor(t, "receiver complete", func() bool { return receiver.Status().State == "complete" })
	waitFor(t, "sender complete", func() bool { return sender.Status().State == "complete" })

	got, ok := receiverLog.completePayload()
	if !ok {
		t.Fatalf("missing receiver transfer-complete event")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("delivered payload differs from original")
	}
	if n := senderLog.countKind(EventTransferComplete); n != 1 {
		t.Fatalf("expected one sender transfer-complete event, got %d", n)
	}
	if st := receiver.Status(); st.SenderName != "Night Shift" {
		t.Fatalf("metadata did not carry the sender name: %+v", st)
	}
}

func TestLoopbackBackpressurePausesSender(t *testing.T) {
	testlog.Start(t)
	link := transport.NewLoopback(transport.LoopbackConfig{
		MaxPayloadBytes: 20,
		NotifyBuffer:    2,
		AutoDrain:       false,
	})
	defer link.Close()

	sender := NewSender(link.Peripheral(), fastConfig())
	defer sender.Close()
	receiver := NewReceiver(link.Central(), fastConfig())
	defer receiver.Close()
	senderLog := collectEvents(sender.Events())
	receiverLog := collectEvents(receiver.Events())

	payload := testPayload(100)
	if err := sender.Start(payload, "Night Shift"); err != nil {
		t.Fatalf("sender start: %v", err)
	}
	if err := receiver.Start(); err != nil {
		t.Fatalf("receiver start: %v", err)
	}

	// With no drain, the two-deep buffer fills and the third push bounces.
	waitFor(t, "sender paused", func() bool {
		return senderLog.has(EventStateChanged, "paused_for_backpressure")
	})

	for receiver.Status().State != "complete" {
		link.Drain(1)
		time.Sleep(time.Millisecond)
	}
	waitFor(t, "sender complete", func() bool { return sender.Status().State == "complete" })

	got, ok := receiverLog.completePayload()
	if !ok {
		t.Fatalf("missing receiver transfer-complete event")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("delivered payload differs from original")
	}
}

func TestLoopbackLinkDropParksBothAndRestartCompletes(t *testing.T) {
	testlog.Start(t)
	link := transport.NewLoopback(transport.LoopbackConfig{
		MaxPayloadBytes: 20,
		NotifyBuffer:    2,
		AutoDrain:       false,
	})
	defer link.Close()

	sender := NewSender(link.Peripheral(), fastConfig())
	defer sender.Close()
	receiver := NewReceiver(link.Central(), fastConfig())
	defer receiver.Close()
	senderLog := collectEvents(sender.Events())
	receiverLog := collectEvents(receiver.Events())

	payload := testPayload(100)
	if err := sender.Start(payload, "Night Shift"); err != nil {
		t.Fatalf("sender start: %v", err)
	}
	if err := receiver.Start(); err != nil {
		t.Fatalf("receiver start: %v", err)
	}

	// Let a couple of chunks land, then sever the link mid-stream.
	delivered := 0
	waitFor(t, "partial delivery", func() bool {
		delivered += link.Drain(1)
		return delivered >= 2 && receiver.Status().Received >= 2
	})
	link.DropLink()

	waitFor(t, "sender parked", func() bool { return senderLog.has(EventStateChanged, "disconnected") })
	waitFor(t, "receiver parked", func() bool { return receiverLog.has(EventStateChanged, "disconnected") })

	// Interruption is not failure: the sender keeps advertising and the
	// receiver reconnects for a full restart.
	for receiver.Status().State != "complete" {
		if st := sender.Status().State; st == "failed" || st == "cancelled" {
			t.Fatalf("sender must not fail on link drop, state=%s", st)
		}
		link.Drain(1)
		time.Sleep(time.Millisecond)
	}
	waitFor(t, "sender complete", func() bool { return sender.Status().State == "complete" })

	got, ok := receiverLog.completePayload()
	if !ok {
		t.Fatalf("missing receiver transfer-complete event")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("restarted transfer payload differs from original")
	}
}

func TestLoopbackReceiverCancelStopsSender(t *testing.T) {
	testlog.Start(t)
	link := transport.NewLoopback(transport.LoopbackConfig{
		MaxPayloadBytes: 20,
		NotifyBuffer:    2,
		AutoDrain:       false,
	})
	defer link.Close()

	sender := NewSender(link.Peripheral(), fastConfig())
	defer sender.Close()
	receiver := NewReceiver(link.Central(), fastConfig())
	defer receiver.Close()
	senderLog := collectEvents(sender.Events())
	receiverLog := collectEvents(receiver.Events())

	if err := sender.Start(testPayload(100), "Night Shift"); err != nil {
		t.Fatalf("sender start: %v", err)
	}
	if err := receiver.Start(); err != nil {
		t.Fatalf("receiver start: %v", err)
	}
	waitFor(t, "streaming", func() bool { return receiver.Status().State == "receiving" })

	receiver.Cancel()
	waitFor(t, "receiver stopped", func() bool { return receiverLog.has(EventStateChanged, "stopped") })
	waitFor(t, "sender stopped", func() bool { return senderLog.has(EventStateChanged, "stopped") })
	if st := sender.Status().State; st != "cancelled" {
		t.Fatalf("sender state after peer cancel: %s", st)
	}
}
