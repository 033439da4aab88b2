package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/sim"
	"lockstep/client/logging/commands"
	"lockstep/client/logging/lifecycle"
	"lockstep/client/logging/network"
	"lockstep/client/logging/simulation"
)

func TestMapDataWhileJoiningIsProtocolViolation(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.server.receive()

	h.server.send(&proto.MapData{Chunk: []byte{1, 2, 3}})
	err := h.step()
	reason, ok := AsReason(err)
	if !ok {
		t.Fatalf("expected a Reason, got %v", err)
	}
	if reason.Kind != KindProtocolViolation || reason.Code != proto.ErrorNotExpected {
		t.Fatalf("unexpected reason %+v", reason)
	}
	if h.session.State() != StateErrored {
		t.Fatalf("expected errored state, got %s", h.session.State())
	}
	report := expectOne[*proto.ClientError](t, h.server.receive())
	if report.Code != proto.ErrorNotExpected {
		t.Fatalf("unexpected error report %s", report.Code)
	}
	if len(h.ui.errors) != 1 || h.ui.errors[0] != KindProtocolViolation {
		t.Fatalf("unexpected ui errors %v", h.ui.errors)
	}
	if len(h.ui.disconnected) != 1 {
		t.Fatalf("expected one disconnect report, got %d", len(h.ui.disconnected))
	}
	if len(h.saver.saves) != 0 {
		t.Fatalf("expected no emergency save outside active state")
	}
	if len(h.events.ofType(network.EventPacketRejected)) != 1 {
		t.Fatalf("expected packet rejected event")
	}
	if err := h.step(); !errors.Is(err, reason) {
		t.Fatalf("expected the stored reason on later steps, got %v", err)
	}
}

func TestHandshakeReachesActive(t *testing.T) {
	h := newHarness(t, Options{ClientName: "alice"})
	h.join(500)

	if h.session.ClientID() != 7 {
		t.Fatalf("unexpected client id %d", h.session.ClientID())
	}
	if h.session.Frame() != 500 {
		t.Fatalf("expected frame 500, got %d", h.session.Frame())
	}
	if len(h.ui.connected) != 1 || h.ui.mapLoaded != 1 {
		t.Fatalf("unexpected ui lifecycle connected=%v mapLoaded=%d", h.ui.connected, h.ui.mapLoaded)
	}
	if !bytes.Equal(h.sim.loaded, bytes.Repeat([]byte("map"), 100)) {
		t.Fatalf("simulation received %d unexpected bytes", len(h.sim.loaded))
	}
	if h.ui.lastStatus().Phase != PhaseActive {
		t.Fatalf("expected active status, got %v", h.ui.lastStatus())
	}
	if len(h.events.ofType(network.EventEncryptionEnabled)) != 1 {
		t.Fatalf("expected encryption event")
	}
	if len(h.events.ofType(lifecycle.EventConnected)) != 1 {
		t.Fatalf("expected connected event")
	}
	if len(h.events.ofType(simulation.EventMapLoaded)) != 1 {
		t.Fatalf("expected map loaded event")
	}
	diag := h.session.Diagnostics()
	if diag.State != "active" || diag.Frame != 500 || diag.ClientID != 7 {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}
}

func TestWaitReportsQueuePosition(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.state = StateMapWait
	h.server.send(&proto.Wait{Waiting: 3})
	h.mustStep()
	status := h.ui.lastStatus()
	if status.Phase != PhaseWaiting || status.Waiting != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCommandLifecycleResolvesCallback(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(100)

	cmd := sim.Command{Company: 0, Action: 0x0010, Tile: 42, P1: 7, Text: "depot"}
	var results []sim.Result
	status, err := h.session.SubmitCommand(cmd, func(r sim.Result) { results = append(results, r) })
	if err != nil || status != sim.SubmitAccepted {
		t.Fatalf("submit: status=%s err=%v", status, err)
	}
	sent := expectOne[*proto.ClientCommand](t, h.server.receive())
	if sent.Command != cmd {
		t.Fatalf("unexpected command on the wire %+v", sent.Command)
	}

	echo := cmd
	echo.Action |= sim.ActionFlagNetwork
	h.server.send(
		&proto.ServerCommand{Command: echo, Frame: 103, Mine: true},
		&proto.Frame{Frame: 102, MaxFrame: 105},
	)
	h.mustStep()
	if len(results) != 0 {
		t.Fatalf("callback fired before frame 103")
	}

	h.server.send(&proto.Frame{Frame: 103, MaxFrame: 105})
	h.mustStep()
	if len(results) != 1 {
		t.Fatalf("expected one callback, got %d", len(results))
	}
	if !results[0].Succeeded() || results[0].Frame != 103 {
		t.Fatalf("unexpected result %+v", results[0])
	}
	if h.session.PendingCallbacks() != 0 {
		t.Fatalf("expected empty registry, got %d", h.session.PendingCallbacks())
	}
	if len(h.sim.executed) != 1 || h.sim.executed[0].frame != 103 {
		t.Fatalf("unexpected executions %+v", h.sim.executed)
	}
	if len(h.events.ofType(commands.EventCommandResolved)) != 1 {
		t.Fatalf("expected resolved event")
	}
}

func TestCommandFailureReachesCallback(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	h.sim.execErr = errors.New("not enough money")

	cmd := sim.Command{Action: 0x0020, Tile: 1}
	var got sim.Result
	if _, err := h.session.SubmitCommand(cmd, func(r sim.Result) { got = r }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.server.send(&proto.ServerCommand{Command: cmd, Frame: 11, Mine: true}, &proto.Frame{Frame: 11, MaxFrame: 11})
	h.mustStep()
	if got.Succeeded() || got.Err.Error() != "not enough money" {
		t.Fatalf("unexpected result %+v", got)
	}
	if h.session.State() != StateActive {
		t.Fatalf("a failed command must not end the session")
	}
}

func TestCommandTextSurvivesEcho(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(100)

	var results []sim.Result
	record := func(r sim.Result) { results = append(results, r) }
	if _, err := h.session.SubmitCommand(sim.Command{Action: 0x0030, Tile: 5, Text: "sign\ttext"}, record); !errors.Is(err, sim.ErrInvalidCommand) {
		t.Fatalf("expected text with a tab to be rejected, got %v", err)
	}
	if h.session.PendingCallbacks() != 0 || len(h.server.receive()) != 0 {
		t.Fatalf("rejected command must not be sent or tracked")
	}

	cmd := sim.Command{Action: 0x0030, Tile: 5, Text: "north\nstation ÅÄÖ"}
	if _, err := h.session.SubmitCommand(cmd, record); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := expectOne[*proto.ClientCommand](t, h.server.receive())
	if sent.Command.Text != cmd.Text {
		t.Fatalf("text changed on the wire: %q", sent.Command.Text)
	}
	h.server.send(&proto.ServerCommand{Command: sent.Command, Frame: 101, Mine: true}, &proto.Frame{Frame: 101, MaxFrame: 101})
	h.mustStep()
	if len(results) != 1 || !results[0].Succeeded() || h.session.PendingCallbacks() != 0 {
		t.Fatalf("echo did not resolve the callback: results=%+v pending=%d", results, h.session.PendingCallbacks())
	}
}

func TestBackloggedCommandsExpireFromTransmission(t *testing.T) {
	h := newHarness(t, Options{CallbackLifetime: 30, CommandsPerFrame: 2})
	h.join(10)

	const total = 70
	var fired []sim.Result
	for i := 0; i < total; i++ {
		cmd := sim.Command{Action: 0x0010, Tile: uint32(i)}
		if _, err := h.session.SubmitCommand(cmd, func(r sim.Result) { fired = append(fired, r) }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	sent := 0
	for _, m := range h.server.receive() {
		if _, ok := m.(*proto.ClientCommand); ok {
			sent++
		}
	}
	for frame := uint32(11); frame <= 41; frame++ {
		h.server.send(&proto.Frame{Frame: frame, MaxFrame: frame})
		h.mustStep()
		for _, m := range h.server.receive() {
			if _, ok := m.(*proto.ClientCommand); ok {
				sent++
			}
		}
		for _, r := range fired {
			if int(r.Command.Tile) >= sent {
				t.Fatalf("frame %d: callback for unsent tile %d fired with %v", frame, r.Command.Tile, r.Err)
			}
		}
	}
	if h.session.QueuedCommands() != total-sent || sent != 64 {
		t.Fatalf("expected 64 sent and the rest queued, sent=%d queued=%d", sent, h.session.QueuedCommands())
	}
	// Only the two commands sent at frame 10 are past the lifetime.
	if len(fired) != 2 {
		t.Fatalf("expected two expiries at frame 41, got %d", len(fired))
	}
	for _, r := range fired {
		if !errors.Is(r.Err, sim.ErrCallbackExpired) || r.Command.Tile > 1 {
			t.Fatalf("unexpected result %+v", r)
		}
	}

	if err := h.session.Quit(); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if len(fired) != total {
		t.Fatalf("expected every callback to fire once after quit, got %d", len(fired))
	}
	for _, r := range fired[2:] {
		if !errors.Is(r.Err, sim.ErrDisconnected) {
			t.Fatalf("unexpected result %+v", r)
		}
	}
}

func TestOtherClientsCommandsDoNotResolve(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)

	cmd := sim.Command{Action: 0x0010, Tile: 9}
	fired := 0
	if _, err := h.session.SubmitCommand(cmd, func(sim.Result) { fired++ }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.server.send(&proto.ServerCommand{Command: cmd, Frame: 11, Mine: false}, &proto.Frame{Frame: 11, MaxFrame: 11})
	h.mustStep()
	if fired != 0 || h.session.PendingCallbacks() != 1 {
		t.Fatalf("foreign echo resolved the callback: fired=%d pending=%d", fired, h.session.PendingCallbacks())
	}
	if len(h.sim.executed) != 1 {
		t.Fatalf("foreign command should still execute")
	}
}

func TestDesyncTearsDownWithEmergencySave(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(999)
	h.sim.checksums[1000] = 0xABCD

	pending := 0
	if _, err := h.session.SubmitCommand(sim.Command{Action: 0x0010}, func(r sim.Result) {
		if errors.Is(r.Err, sim.ErrDisconnected) {
			pending++
		}
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.server.receive()

	h.server.send(&proto.Frame{Frame: 1000, MaxFrame: 1000, Checksum: 0x1234, HasChecksum: true})
	err := h.step()
	reason, ok := AsReason(err)
	if !ok || reason.Kind != KindDesync {
		t.Fatalf("expected desync, got %v", err)
	}
	if h.session.State() != StateErrored {
		t.Fatalf("expected errored, got %s", h.session.State())
	}
	if len(h.saver.saves) != 1 || h.saver.saves[0].Frame != 1000 {
		t.Fatalf("expected one emergency save at frame 1000, got %+v", h.saver.saves)
	}
	if string(h.saver.data[0]) != "emergency" {
		t.Fatalf("unexpected snapshot %q", h.saver.data[0])
	}
	if pending != 1 {
		t.Fatalf("expected the pending callback to fail once, got %d", pending)
	}
	report := expectOne[*proto.ClientError](t, h.server.receive())
	if report.Code != proto.ErrorDesync {
		t.Fatalf("unexpected report %s", report.Code)
	}
	desyncs := h.events.ofType(simulation.EventDesync)
	if len(desyncs) != 1 {
		t.Fatalf("expected one desync event, got %d", len(desyncs))
	}
	payload := desyncs[0].Payload.(simulation.DesyncPayload)
	if payload.LocalChecksum != 0xABCD || payload.ServerChecksum != 0x1234 {
		t.Fatalf("unexpected desync payload %+v", payload)
	}

	advanced := h.sim.advanced
	for i := 0; i < 3; i++ {
		if err := h.step(); !errors.Is(err, reason) {
			t.Fatalf("expected stored reason, got %v", err)
		}
	}
	if h.sim.advanced != advanced || h.sim.frame != 1000 {
		t.Fatalf("frames ran after desync: advanced=%d frame=%d", h.sim.advanced, h.sim.frame)
	}
}

func TestSyncMatchSendsFirstAck(t *testing.T) {
	h := newHarness(t, Options{AckInterval: 5})
	h.join(50)
	h.sim.checksums[52] = 0x55

	h.server.send(&proto.Frame{Frame: 51, MaxFrame: 60, Token: 4, HasToken: true})
	h.mustStep()
	if msgs := h.server.receive(); len(msgs) != 0 {
		t.Fatalf("ack sent before the first sync check: %v", packetTypes(msgs))
	}

	h.server.send(&proto.Sync{Frame: 52, Checksum: 0x55})
	h.mustStep()
	ack := expectOne[*proto.Ack](t, h.server.receive())
	if ack.Frame != 52 || ack.Token != 4 {
		t.Fatalf("unexpected ack %+v", ack)
	}

	for i := 0; i < 5; i++ {
		h.server.send(&proto.Frame{Frame: 53 + uint32(i), MaxFrame: 60})
		h.mustStep()
	}
	if msgs := h.server.receive(); len(msgs) != 0 {
		t.Fatalf("ack sent before the interval elapsed: %v", packetTypes(msgs))
	}
	h.server.send(&proto.Frame{Frame: 58, MaxFrame: 60})
	h.mustStep()
	h.server.send(&proto.Frame{Frame: 59, MaxFrame: 60})
	h.mustStep()
	ack = expectOne[*proto.Ack](t, h.server.receive())
	if ack.Frame != 58 {
		t.Fatalf("expected periodic ack at frame 58, got %d", ack.Frame)
	}
}

func TestMissedSyncIsDropped(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(20)
	h.server.send(&proto.Frame{Frame: 25, MaxFrame: 25})
	h.mustStep()

	h.server.send(&proto.Sync{Frame: 22, Checksum: 0xDEAD})
	h.mustStep()
	if h.session.State() != StateActive {
		t.Fatalf("a missed sync must not end the session")
	}
	if len(h.events.ofType(simulation.EventSyncMissed)) != 1 {
		t.Fatalf("expected sync missed event")
	}
}

func TestCommandScheduledInPastIsDesync(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	h.server.send(&proto.Frame{Frame: 12, MaxFrame: 12})
	h.mustStep()

	h.server.send(&proto.ServerCommand{Command: sim.Command{Action: 0x0010}, Frame: 12}, &proto.Frame{Frame: 13, MaxFrame: 13})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindDesync || !errors.Is(reason, sim.ErrCommandInPast) {
		t.Fatalf("expected desync from a past command, got %v", reason)
	}
	if len(h.saver.saves) != 1 {
		t.Fatalf("expected an emergency save")
	}
}

func TestUnechoedCommandExpires(t *testing.T) {
	h := newHarness(t, Options{CallbackLifetime: 30})
	h.join(10)

	var results []sim.Result
	if _, err := h.session.SubmitCommand(sim.Command{Action: 0x0010, Tile: 3}, func(r sim.Result) { results = append(results, r) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.server.send(&proto.Frame{Frame: 39, MaxFrame: 39})
	h.mustStep()
	if len(results) != 0 || h.session.PendingCallbacks() != 1 {
		t.Fatalf("expected entry pending at frame 39, results=%d", len(results))
	}
	h.server.send(&proto.Frame{Frame: 41, MaxFrame: 41})
	h.mustStep()
	if len(results) != 1 || !errors.Is(results[0].Err, sim.ErrCallbackExpired) || results[0].Frame != 41 {
		t.Fatalf("expected expiry at frame 41, got %+v", results)
	}
	if len(h.events.ofType(commands.EventCommandsExpired)) != 1 {
		t.Fatalf("expected expired event")
	}

	h.server.send(&proto.ServerCommand{Command: sim.Command{Action: 0x0010, Tile: 3}, Frame: 42, Mine: true}, &proto.Frame{Frame: 42, MaxFrame: 42})
	h.mustStep()
	if len(results) != 1 {
		t.Fatalf("late echo must not fire the callback again")
	}
}

func TestQuotaSpreadsCommandsAcrossFrames(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)

	var want []sim.Command
	var statuses []sim.SubmitStatus
	for i := 0; i < 5; i++ {
		cmd := sim.Command{Action: 0x0010, Tile: uint32(i)}
		want = append(want, cmd)
		status, err := h.session.SubmitCommand(cmd, nil)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		statuses = append(statuses, status)
	}
	wantStatus := []sim.SubmitStatus{sim.SubmitAccepted, sim.SubmitAccepted, sim.SubmitQueued, sim.SubmitQueued, sim.SubmitQueued}
	for i := range wantStatus {
		if statuses[i] != wantStatus[i] {
			t.Fatalf("status %d = %s, want %s", i, statuses[i], wantStatus[i])
		}
	}

	var got []sim.Command
	collect := func(expected int) {
		t.Helper()
		msgs := h.server.receive()
		if len(msgs) != expected {
			t.Fatalf("expected %d commands, got %d", expected, len(msgs))
		}
		for _, m := range msgs {
			got = append(got, m.(*proto.ClientCommand).Command)
		}
	}
	collect(2)
	for frame, expected := range []int{2, 1, 0} {
		h.server.send(&proto.Frame{Frame: 11 + uint32(frame), MaxFrame: 20})
		h.mustStep()
		collect(expected)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d out of order: %+v", i, got[i])
		}
	}
	if len(h.events.ofType(commands.EventCommandQueued)) != 3 {
		t.Fatalf("expected three queued events")
	}
}

func TestSubmitRequiresActiveSession(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.session.SubmitCommand(sim.Command{Action: 1}, nil); !errors.Is(err, sim.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := h.session.SubmitCommand(sim.Command{}, nil); !errors.Is(err, sim.ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestQuitCancelsCallbacks(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)

	var results []sim.Result
	for i := 0; i < 3; i++ {
		if _, err := h.session.SubmitCommand(sim.Command{Action: 0x0010, Tile: uint32(i)}, func(r sim.Result) { results = append(results, r) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	h.server.receive()
	if err := h.session.Quit(); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected every callback to fire, got %d", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Err, sim.ErrDisconnected) {
			t.Fatalf("unexpected result %+v", r)
		}
	}
	expectOne[*proto.ClientQuit](t, h.server.receive())
	if h.session.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.session.State())
	}
	if len(h.ui.errors) != 0 {
		t.Fatalf("a user quit is not an error: %v", h.ui.errors)
	}
	if h.session.QueuedCommands() != 0 || h.session.PendingCallbacks() != 0 {
		t.Fatalf("state not cleared after quit")
	}
	if len(h.session.Clients()) != 0 || len(h.session.journal.Entries()) != 0 {
		t.Fatalf("roster or journal survived teardown")
	}
	reason := h.session.Reason()
	if reason == nil || reason.Fatal() {
		t.Fatalf("unexpected reason %+v", reason)
	}
}

func TestServerDisconnects(t *testing.T) {
	tests := []struct {
		name      string
		msg       proto.Message
		kind      Kind
		save      bool
		reconnect bool
	}{
		{name: "shutdown", msg: &proto.Shutdown{}, kind: KindServerDisconnect, save: true},
		{name: "restart", msg: &proto.NewGame{}, kind: KindServerDisconnect, save: true, reconnect: true},
		{name: "kicked", msg: &proto.ServerError{Code: proto.ErrorKicked, Message: "bye"}, kind: KindServerDisconnect, save: true},
		{name: "server desync", msg: &proto.ServerError{Code: proto.ErrorDesync}, kind: KindDesync, save: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{ReconnectDelay: 3 * time.Second})
			h.join(10)
			h.server.send(tt.msg)
			reason, ok := AsReason(h.step())
			if !ok || reason.Kind != tt.kind || !reason.Remote {
				t.Fatalf("unexpected reason %+v", reason)
			}
			if (len(h.saver.saves) == 1) != tt.save {
				t.Fatalf("emergency saves = %d, want save=%v", len(h.saver.saves), tt.save)
			}
			if reason.Reconnect != tt.reconnect {
				t.Fatalf("reconnect = %v", reason.Reconnect)
			}
			if tt.reconnect && reason.ReconnectAfter != 3*time.Second {
				t.Fatalf("unexpected reconnect delay %s", reason.ReconnectAfter)
			}
			if msgs := h.server.receive(); len(msgs) != 0 {
				t.Fatalf("client must not report server initiated disconnects: %v", packetTypes(msgs))
			}
		})
	}
}

func TestServerErrorBeforeActiveSkipsSave(t *testing.T) {
	tests := []struct {
		name string
		msg  proto.Message
		code proto.ErrorCode
	}{
		{name: "full", msg: &proto.Full{}, code: proto.ErrorFull},
		{name: "desync", msg: &proto.ServerError{Code: proto.ErrorDesync}, code: proto.ErrorDesync},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			if err := h.session.Start(); err != nil {
				t.Fatalf("start: %v", err)
			}
			h.server.send(tt.msg)
			reason, ok := AsReason(h.step())
			if !ok || reason.Code != tt.code {
				t.Fatalf("unexpected reason %+v", reason)
			}
			if len(h.saver.saves) != 0 {
				t.Fatalf("no save expected before the map loaded")
			}
		})
	}
}

func TestContentMismatchFailsHandshake(t *testing.T) {
	h := newHarness(t, Options{})
	h.session.deps.Catalog = ContentCatalogFunc(func(id uint32, _ [16]byte) bool { return id != 0x4D4D0001 })
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.server.receive()
	h.server.send(&proto.CheckNewGRFs{GRFs: []proto.GRFIdentifier{{ID: 0x11}, {ID: 0x4D4D0001}}})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindContentMismatch {
		t.Fatalf("expected content mismatch, got %v", reason)
	}
	report := expectOne[*proto.ClientError](t, h.server.receive())
	if report.Code != proto.ErrorNewGRFMismatch {
		t.Fatalf("unexpected report %s", report.Code)
	}
}

func TestContentCheckPasses(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.server.receive()
	h.server.send(&proto.CheckNewGRFs{GRFs: []proto.GRFIdentifier{{ID: 0x11}}})
	h.mustStep()
	expectOne[*proto.NewGRFsChecked](t, h.server.receive())
	if h.session.State() != StateNewGRFsCheck {
		t.Fatalf("unexpected state %s", h.session.State())
	}
}

func TestPasswordRequiredWithoutPassword(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.server.receive()
	h.server.send(&proto.AuthRequest{Method: proto.AuthX25519PAKE, PublicKey: h.server.pair.Public})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindAuthFailure || reason.Code != proto.ErrorWrongPassword {
		t.Fatalf("unexpected reason %+v", reason)
	}
}

func TestUnsupportedAuthMethod(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.server.receive()
	h.server.send(&proto.AuthRequest{Method: proto.AuthX25519AuthorizedKey, PublicKey: h.server.pair.Public})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindAuthFailure || reason.Code != proto.ErrorNoAuthMethod {
		t.Fatalf("unexpected reason %+v", reason)
	}
}

func TestLoadFailureSavesAndTearsDown(t *testing.T) {
	h := newHarness(t, Options{})
	h.sim.loadErr = errors.New("corrupt")
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.session.state = StateMapWait
	h.server.send(&proto.MapBegin{Frame: 1}, &proto.MapData{Chunk: encodeSnapshot(t, []byte("x"))}, &proto.MapDone{})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindLoadFailed {
		t.Fatalf("expected load failure, got %v", reason)
	}
	if len(h.saver.saves) != 1 {
		t.Fatalf("expected an emergency save on load failure")
	}
}

func TestUnknownSnapshotFormatFailsLoad(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.session.state = StateMapWait
	h.server.send(&proto.MapBegin{Frame: 1}, &proto.MapData{Chunk: []byte("ZZZZdata")}, &proto.MapDone{})
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindLoadFailed {
		t.Fatalf("expected load failure, got %v", reason)
	}
}

func TestLagWarningThenTimeout(t *testing.T) {
	h := newHarness(t, Options{LagWarning: time.Second, LagTimeout: 3 * time.Second})
	h.join(10)

	h.now = h.now.Add(1500 * time.Millisecond)
	h.mustStep()
	status := h.ui.lastStatus()
	if status.Phase != PhaseLagging || status.Silence < time.Second {
		t.Fatalf("expected lag status, got %+v", status)
	}
	if len(h.events.ofType(network.EventLagWarning)) != 1 {
		t.Fatalf("expected lag warning event")
	}

	h.server.send(&proto.Frame{Frame: 11, MaxFrame: 11})
	h.mustStep()
	if h.ui.lastStatus().Phase != PhaseActive {
		t.Fatalf("expected active status after packets resume, got %+v", h.ui.lastStatus())
	}

	h.now = h.now.Add(4 * time.Second)
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", reason)
	}
	if len(h.saver.saves) != 0 {
		t.Fatalf("timeout must not save")
	}
}

func TestRosterTracksClients(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	h.server.send(
		&proto.ClientInfo{ClientID: 7, Company: sim.CompanySpectator, Name: "alice"},
		&proto.ClientInfo{ClientID: 3, Company: 1, Name: "bob"},
		&proto.ServerJoin{ClientID: 9},
		&proto.ServerMove{ClientID: 7, Company: 2},
		&proto.ServerQuit{ClientID: 9},
		&proto.ServerChat{Action: proto.ChatMessage, ClientID: 3, Text: "hi"},
	)
	h.mustStep()
	clients := h.session.Clients()
	if len(clients) != 2 || clients[0].ID != 3 || clients[1].ID != 7 {
		t.Fatalf("unexpected roster %+v", clients)
	}
	if clients[1].Company != 2 || clients[1].Name != "alice" {
		t.Fatalf("move not applied: %+v", clients[1])
	}
	if len(h.ui.notices) != 6 {
		t.Fatalf("expected six notices, got %d", len(h.ui.notices))
	}
}

func TestCompanySelectionAfterLoad(t *testing.T) {
	t.Run("join existing company", func(t *testing.T) {
		h := newHarness(t, Options{Company: 2})
		h.joinExpectingExtra(10, func(msgs []proto.Message) {
			move, ok := msgs[0].(*proto.ClientMove)
			if !ok || move.Company != 2 {
				t.Fatalf("expected move to company 2, got %v", packetTypes(msgs))
			}
		})
	})
	t.Run("request new company", func(t *testing.T) {
		h := newHarness(t, Options{Company: sim.CompanyNew})
		h.joinExpectingExtra(10, func(msgs []proto.Message) {
			cmd, ok := msgs[0].(*proto.ClientCommand)
			if !ok || cmd.Command.Action != sim.ActionCompanyCtrl || cmd.Command.P2 != 7 {
				t.Fatalf("expected company creation command, got %v", packetTypes(msgs))
			}
		})
		if h.session.PendingCallbacks() != 1 {
			t.Fatalf("expected the creation command to be tracked")
		}
	})
}

// joinExpectingExtra runs join but hands the packets following MapOk to
// check.
func (h *harness) joinExpectingExtra(startFrame uint32, check func([]proto.Message)) {
	h.t.Helper()
	company := h.session.opts.Company
	h.session.opts.Company = sim.CompanySpectator
	if err := h.session.Start(); err != nil {
		h.t.Fatalf("start: %v", err)
	}
	h.session.opts.Company = company
	h.server.receive()
	h.session.state = StateMapWait
	h.session.clientID = 7
	h.server.send(&proto.MapBegin{Frame: startFrame}, &proto.MapData{Chunk: encodeSnapshot(h.t, []byte("m"))}, &proto.MapDone{})
	h.sim.startFrame = startFrame
	h.mustStep()
	msgs := h.server.receive()
	if len(msgs) != 2 {
		h.t.Fatalf("expected MapOk plus one packet, got %v", packetTypes(msgs))
	}
	if _, ok := msgs[0].(*proto.MapOk); !ok {
		h.t.Fatalf("expected MapOk first, got %v", packetTypes(msgs))
	}
	check(msgs[1:])
}

func TestMapBeginResetsPendingState(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	fired := 0
	if _, err := h.session.SubmitCommand(sim.Command{Action: 0x0010}, func(r sim.Result) {
		if errors.Is(r.Err, sim.ErrDisconnected) {
			fired++
		}
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.session.state = StateMapWait
	h.server.send(&proto.MapBegin{Frame: 400})
	h.mustStep()
	if fired != 1 || h.session.PendingCallbacks() != 0 {
		t.Fatalf("expected map begin to fail pending callbacks, fired=%d", fired)
	}
	if h.session.Frame() != 400 || h.session.State() != StateMapTransfer {
		t.Fatalf("unexpected frame=%d state=%s", h.session.Frame(), h.session.State())
	}
}

func TestCatchUpIsBounded(t *testing.T) {
	h := newHarness(t, Options{CatchUpMaxFrames: 10})
	h.join(0)
	h.server.send(&proto.Frame{Frame: 25, MaxFrame: 25})
	h.mustStep()
	if h.session.Frame() != 10 {
		t.Fatalf("expected 10 frames after one step, got %d", h.session.Frame())
	}
	if len(h.events.ofType(simulation.EventCatchUpBounded)) != 1 {
		t.Fatalf("expected catch-up event")
	}
	h.mustStep()
	h.mustStep()
	if h.session.Frame() != 25 {
		t.Fatalf("expected to reach frame 25, got %d", h.session.Frame())
	}
}

func TestMaxFrameAllowsOneFramePerStep(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(0)
	h.server.send(&proto.Frame{Frame: 0, MaxFrame: 3})
	for i := 0; i < 5; i++ {
		h.mustStep()
	}
	if h.session.Frame() != 3 {
		t.Fatalf("expected to stop at max frame 3, got %d", h.session.Frame())
	}
}

func TestOfflineSubmitExecutesImmediately(t *testing.T) {
	fake := newFakeSim()
	s, err := New(context.Background(), Options{}, Deps{Simulation: fake})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var got []sim.Result
	status, err := s.SubmitCommand(sim.Command{Action: 0x0010, Tile: 4}, func(r sim.Result) { got = append(got, r) })
	if err != nil || status != sim.SubmitAccepted {
		t.Fatalf("submit: %s %v", status, err)
	}
	if len(got) != 1 || !got[0].Succeeded() || len(fake.executed) != 1 {
		t.Fatalf("expected synchronous execution, got %+v", got)
	}
	if err := s.Start(); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if err := s.Step(time.Now()); err != nil {
		t.Fatalf("offline step: %v", err)
	}
	if fake.advanced != 1 {
		t.Fatalf("expected offline step to advance the simulation")
	}
}

func TestTamperedPacketIsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	frame, err := proto.Encode(&proto.Frame{Frame: 11, MaxFrame: 11})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sealed, err := h.server.channel.Send.SealFrame(frame)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if err := h.server.conn.Send(sealed); err != nil {
		t.Fatalf("send: %v", err)
	}
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindProtocolViolation || reason.Code != proto.ErrorIllegalPacket {
		t.Fatalf("unexpected reason %+v", reason)
	}
}

func TestConnectionLoss(t *testing.T) {
	h := newHarness(t, Options{})
	h.join(10)
	_ = h.server.conn.Close()
	reason, ok := AsReason(h.step())
	if !ok || reason.Kind != KindConnectionLost {
		t.Fatalf("expected connection lost, got %v", reason)
	}
}
