package sim

import (
	"errors"
	"testing"
)

func TestOutgoingQueueQuotaAndOrder(t *testing.T) {
	var sent []uint32
	queue := NewOutgoingQueue(0, TransmitFunc(func(item Outgoing) error {
		sent = append(sent, item.Command.Tile)
		return nil
	}), nil)

	statuses := make([]SubmitStatus, 0, 5)
	for i := uint32(1); i <= 5; i++ {
		status, err := queue.Submit(Command{Action: 1, Tile: i}, nil)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		statuses = append(statuses, status)
	}
	want := []SubmitStatus{SubmitAccepted, SubmitAccepted, SubmitQueued, SubmitQueued, SubmitQueued}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("submit %d: expected %s, got %s", i+1, want[i], statuses[i])
		}
	}

	perFrame := []int{2}
	for frame := 0; frame < 3; frame++ {
		n, err := queue.Advance()
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		perFrame = append(perFrame, n)
	}
	if perFrame[0] != 2 || perFrame[1] != 2 || perFrame[2] != 1 || perFrame[3] != 0 {
		t.Fatalf("expected 2/2/1/0 per frame, got %v", perFrame)
	}
	for i, tile := range sent {
		if tile != uint32(i+1) {
			t.Fatalf("expected FIFO transmission, got %v", sent)
		}
	}
}

func TestOutgoingQueueNeverOvertakes(t *testing.T) {
	var sent []uint32
	queue := NewOutgoingQueue(2, TransmitFunc(func(item Outgoing) error {
		sent = append(sent, item.Command.Tile)
		return nil
	}), nil)
	for i := uint32(1); i <= 3; i++ {
		if _, err := queue.Submit(Command{Action: 1, Tile: i}, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	// One slot frees up, but the backlog goes first.
	if _, err := queue.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	status, err := queue.Submit(Command{Action: 1, Tile: 4}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if status != SubmitAccepted {
		t.Fatalf("expected accept with free quota and empty backlog, got %s", status)
	}
	for i, tile := range sent {
		if tile != uint32(i+1) {
			t.Fatalf("expected submission order, got %v", sent)
		}
	}
}

func TestOutgoingQueueTransmitError(t *testing.T) {
	boom := errors.New("boom")
	queue := NewOutgoingQueue(1, TransmitFunc(func(Outgoing) error { return boom }), nil)
	if _, err := queue.Submit(Command{Action: 1}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected transmit error, got %v", err)
	}
	if queue.SentThisFrame() != 0 {
		t.Fatalf("failed transmission should not use quota")
	}
}

func TestOutgoingQueueReset(t *testing.T) {
	queue := NewOutgoingQueue(1, TransmitFunc(func(Outgoing) error { return nil }), nil)
	for i := uint32(0); i < 3; i++ {
		queue.Submit(Command{Action: 1, Tile: i}, nil)
	}
	dropped := queue.Reset()
	if len(dropped) != 2 || dropped[0].Command.Tile != 1 {
		t.Fatalf("unexpected dropped commands %+v", dropped)
	}
	if queue.Len() != 0 || queue.SentThisFrame() != 0 {
		t.Fatalf("expected empty queue after reset")
	}
}

func TestOutgoingQueueCarriesCallbackToTransmission(t *testing.T) {
	var frame uint32
	sentAt := make(map[uint32]uint32)
	queue := NewOutgoingQueue(1, TransmitFunc(func(item Outgoing) error {
		if item.Callback == nil {
			t.Fatalf("tile %d transmitted without its callback", item.Command.Tile)
		}
		sentAt[item.Command.Tile] = frame
		return nil
	}), nil)
	noop := func(Result) {}
	for i := uint32(1); i <= 3; i++ {
		if _, err := queue.Submit(Command{Action: 1, Tile: i}, noop); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for frame = 1; frame <= 2; frame++ {
		if _, err := queue.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	want := map[uint32]uint32{1: 0, 2: 1, 3: 2}
	for tile, f := range want {
		if sentAt[tile] != f {
			t.Fatalf("tile %d: expected transmission at frame %d, got %d", tile, f, sentAt[tile])
		}
	}
}
