package session

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"lockstep/client/internal/mapxfer"
	"lockstep/client/internal/net/crypto"
	"lockstep/client/internal/net/proto"
	"lockstep/client/internal/net/transport"
	"lockstep/client/internal/sim"
	"lockstep/client/logging"
)

type executed struct {
	cmd   sim.Command
	frame uint32
}

type fakeSim struct {
	startFrame uint32
	frame      uint32
	checksums  map[uint32]uint32
	loaded     []byte
	loadErr    error
	execErr    error
	executed   []executed
	advanced   int
}

func newFakeSim() *fakeSim {
	return &fakeSim{checksums: make(map[uint32]uint32)}
}

func (f *fakeSim) LoadSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.loaded = data
	if f.loadErr != nil {
		return f.loadErr
	}
	f.frame = f.startFrame
	return nil
}

func (f *fakeSim) Execute(cmd sim.Command, frame uint32) error {
	f.executed = append(f.executed, executed{cmd: cmd, frame: frame})
	return f.execErr
}

func (f *fakeSim) AdvanceFrame() {
	f.frame++
	f.advanced++
}

func (f *fakeSim) SyncChecksum() uint32 {
	if sum, ok := f.checksums[f.frame]; ok {
		return sum
	}
	return f.frame * 2654435761
}

func (f *fakeSim) Save(w io.Writer) error {
	_, err := w.Write([]byte("emergency"))
	return err
}

type recordingUI struct {
	errors       []Kind
	statuses     []Status
	notices      []proto.Message
	connected    []uint32
	mapLoaded    int
	disconnected []*Reason
}

func (u *recordingUI) ReportError(kind Kind, _ string) { u.errors = append(u.errors, kind) }
func (u *recordingUI) ReportStatus(status Status)      { u.statuses = append(u.statuses, status) }
func (u *recordingUI) Notify(msg proto.Message)        { u.notices = append(u.notices, msg) }
func (u *recordingUI) Connected(id uint32)             { u.connected = append(u.connected, id) }
func (u *recordingUI) MapLoaded()                      { u.mapLoaded++ }
func (u *recordingUI) Disconnected(reason *Reason)     { u.disconnected = append(u.disconnected, reason) }

func (u *recordingUI) lastStatus() Status {
	if len(u.statuses) == 0 {
		return Status{}
	}
	return u.statuses[len(u.statuses)-1]
}

type recordingSaver struct {
	saves []EmergencySave
	data  [][]byte
}

func (r *recordingSaver) EmergencySave(_ context.Context, save EmergencySave) error {
	var buf bytes.Buffer
	if err := save.Snapshot(&buf); err != nil {
		return err
	}
	r.saves = append(r.saves, save)
	r.data = append(r.data, buf.Bytes())
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []logging.Event
}

func (l *eventLog) Publish(_ context.Context, event logging.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) ofType(kind logging.EventType) []logging.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logging.Event
	for _, e := range l.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakeServer plays the server end of a pipe.
type fakeServer struct {
	t       *testing.T
	conn    *transport.PipeConn
	channel *crypto.Channel
	pair    crypto.KeyPair
}

func (f *fakeServer) send(msgs ...proto.Message) {
	f.t.Helper()
	for _, msg := range msgs {
		frame, err := proto.Encode(msg)
		if err != nil {
			f.t.Fatalf("encode %s: %v", msg.Type(), err)
		}
		if f.channel != nil {
			if frame, err = f.channel.Send.SealFrame(frame); err != nil {
				f.t.Fatalf("seal %s: %v", msg.Type(), err)
			}
		}
		if err := f.conn.Send(frame); err != nil {
			f.t.Fatalf("send %s: %v", msg.Type(), err)
		}
	}
}

func (f *fakeServer) receive() []proto.Message {
	f.t.Helper()
	var out []proto.Message
	for {
		frame, err := f.conn.TryReceive()
		if err != nil || frame == nil {
			return out
		}
		if f.channel != nil {
			if frame, err = f.channel.Receive.OpenFrame(frame); err != nil {
				f.t.Fatalf("open frame: %v", err)
			}
		}
		msg, err := proto.Decode(frame)
		if err != nil {
			f.t.Fatalf("decode: %v", err)
		}
		out = append(out, msg)
	}
}

func expectOne[T proto.Message](t *testing.T, msgs []proto.Message) T {
	t.Helper()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one packet, got %d: %v", len(msgs), packetTypes(msgs))
	}
	msg, ok := msgs[0].(T)
	if !ok {
		t.Fatalf("unexpected packet %s", msgs[0].Type())
	}
	return msg
}

func packetTypes(msgs []proto.Message) []string {
	names := make([]string, len(msgs))
	for i, m := range msgs {
		names[i] = m.Type().String()
	}
	return names
}

type harness struct {
	t       *testing.T
	session *Session
	server  *fakeServer
	sim     *fakeSim
	ui      *recordingUI
	saver   *recordingSaver
	events  *eventLog
	now     time.Time
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clientEnd, serverEnd := transport.Pipe()
	pair, err := crypto.GenerateKeyPair(nil)
	if err != nil {
		t.Fatalf("server key: %v", err)
	}
	h := &harness{
		t:      t,
		server: &fakeServer{t: t, conn: serverEnd, pair: pair},
		sim:    newFakeSim(),
		ui:     &recordingUI{},
		saver:  &recordingSaver{},
		events: &eventLog{},
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if opts.Authenticator == nil {
		opts.Authenticator = &crypto.PasswordAuthenticator{}
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "test"
	}
	if opts.Company == 0 {
		opts.Company = sim.CompanySpectator
	}
	s, err := New(context.Background(), opts, Deps{
		Conn:       clientEnd,
		Simulation: h.sim,
		UI:         h.ui,
		Saver:      h.saver,
		Publisher:  h.events,
		Clock:      logging.ClockFunc(func() time.Time { return h.now }),
		Catalog:    ContentCatalogFunc(func(uint32, [16]byte) bool { return true }),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.session = s
	t.Cleanup(func() { _ = clientEnd.Close() })
	return h
}

func (h *harness) step() error {
	h.now = h.now.Add(30 * time.Millisecond)
	return h.session.Step(h.now)
}

func (h *harness) mustStep() {
	h.t.Helper()
	if err := h.step(); err != nil {
		h.t.Fatalf("step: %v", err)
	}
}

func encodeSnapshot(t *testing.T, body []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := mapxfer.Encode(&buf, "lz4", func(w io.Writer) error {
		_, err := w.Write(body)
		return err
	})
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	return buf.Bytes()
}

// join drives the whole handshake and map download and leaves the session
// active at startFrame.
func (h *harness) join(startFrame uint32) {
	h.t.Helper()
	if err := h.session.Start(); err != nil {
		h.t.Fatalf("start: %v", err)
	}
	join := expectOne[*proto.Join](h.t, h.server.receive())
	if join.ProtocolVersion != proto.Version {
		h.t.Fatalf("unexpected protocol version %d", join.ProtocolVersion)
	}

	req := &proto.AuthRequest{Method: proto.AuthKeyExchangeOnly, PublicKey: h.server.pair.Public, Nonce: [proto.NonceSize]byte{1, 2, 3}}
	h.server.send(req)
	h.mustStep()
	resp := expectOne[*proto.AuthResponse](h.t, h.server.receive())
	keys, err := crypto.Verify(h.server.pair, req, resp, "")
	if err != nil {
		h.t.Fatalf("verify auth response: %v", err)
	}

	nonce := [proto.NonceSize]byte{9, 8, 7}
	h.server.send(&proto.EnableEncryption{Nonce: nonce})
	if h.server.channel, err = crypto.NewServerChannel(keys, nonce); err != nil {
		h.t.Fatalf("server channel: %v", err)
	}
	h.mustStep()
	identify := expectOne[*proto.Identify](h.t, h.server.receive())
	if identify.Name != h.session.opts.ClientName {
		h.t.Fatalf("unexpected identify %+v", identify)
	}

	h.server.send(&proto.Welcome{ClientID: 7})
	h.mustStep()
	expectOne[*proto.GetMap](h.t, h.server.receive())

	snapshot := encodeSnapshot(h.t, bytes.Repeat([]byte("map"), 100))
	h.server.send(&proto.MapBegin{Frame: startFrame}, &proto.MapSize{Bytes: uint32(len(snapshot))})
	for len(snapshot) > 0 {
		n := min(64, len(snapshot))
		h.server.send(&proto.MapData{Chunk: snapshot[:n]})
		snapshot = snapshot[n:]
	}
	h.server.send(&proto.MapDone{})
	h.sim.startFrame = startFrame
	h.mustStep()
	expectOne[*proto.MapOk](h.t, h.server.receive())
	if h.session.State() != StateActive {
		h.t.Fatalf("expected active state, got %s", h.session.State())
	}
}
