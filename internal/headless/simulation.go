// Package headless is a stand-in simulation for running the client without
// a game engine. Its state is a single xorshift word that every frame and
// every executed command perturbs deterministically, so two instances fed
// the same snapshot and commands report the same checksums.
package headless

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"lockstep/client/internal/sim"
)

var snapshotMagic = [4]byte{'H', 'L', 'S', '1'}

// ErrBadSnapshot reports a snapshot this simulation did not write.
var ErrBadSnapshot = errors.New("headless: unrecognised snapshot")

type snapshot struct {
	Magic    [4]byte
	Frame    uint32
	State    uint64
	Executed uint64
}

// Simulation is a deterministic placeholder world.
type Simulation struct {
	frame    uint32
	state    uint64
	executed uint64
}

// New seeds a simulation. A zero seed is replaced since xorshift would stay
// at zero forever.
func New(seed uint64) *Simulation {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	return &Simulation{state: seed}
}

// LoadSnapshot replaces the state.
func (s *Simulation) LoadSnapshot(r io.Reader) error {
	var snap snapshot
	if err := binary.Read(r, binary.LittleEndian, &snap); err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Magic != snapshotMagic || snap.State == 0 {
		return ErrBadSnapshot
	}
	s.frame = snap.Frame
	s.state = snap.State
	s.executed = snap.Executed
	return nil
}

// Save writes the state in the format LoadSnapshot reads.
func (s *Simulation) Save(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, snapshot{
		Magic:    snapshotMagic,
		Frame:    s.frame,
		State:    s.state,
		Executed: s.executed,
	})
}

// Execute folds the command into the state.
func (s *Simulation) Execute(cmd sim.Command, frame uint32) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	s.state ^= sim.FingerprintOf(cmd).Sum | 1
	s.state = xorshift(s.state)
	s.executed++
	return nil
}

// AdvanceFrame runs one step.
func (s *Simulation) AdvanceFrame() {
	s.frame++
	s.state = xorshift(s.state)
}

// SyncChecksum folds the state to 32 bits.
func (s *Simulation) SyncChecksum() uint32 {
	return uint32(s.state) ^ uint32(s.state>>32)
}

// Frame reports how many frames have run, including those in the loaded
// snapshot.
func (s *Simulation) Frame() uint32 {
	return s.frame
}

// Executed reports how many commands have been applied.
func (s *Simulation) Executed() uint64 {
	return s.executed
}

func xorshift(x uint64) uint64 {
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	return x
}
