package sim

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

// Fingerprint correlates a locally issued command with its echo from the
// server. It is a hash, not an identity: two different commands may share a
// fingerprint. A false match fires a callback early or for the wrong
// command, which is acceptable because callbacks only drive UI feedback.
//
// Ext is zero for the default 64-bit fingerprint and carries extra bits
// when a WideFingerprinter is used.
type Fingerprint struct {
	Sum uint64
	Ext uint64
}

func (f Fingerprint) String() string {
	if f.Ext == 0 {
		return fmt.Sprintf("%016x", f.Sum)
	}
	return fmt.Sprintf("%016x%016x", f.Sum, f.Ext)
}

// Fingerprinter derives fingerprints from commands.
type Fingerprinter interface {
	Fingerprint(cmd Command) Fingerprint
}

// FingerprinterFunc adapts a function to Fingerprinter.
type FingerprinterFunc func(cmd Command) Fingerprint

func (f FingerprinterFunc) Fingerprint(cmd Command) Fingerprint {
	return f(cmd)
}

// DefaultFingerprinter hashes commands to 64 bits with xxhash.
var DefaultFingerprinter Fingerprinter = FingerprinterFunc(FingerprintOf)

// WideFingerprinter adds 64 bits from a blake3 digest of the same input for
// callers that observe collisions in practice.
var WideFingerprinter Fingerprinter = FingerprinterFunc(WideFingerprintOf)

// FingerprintOf hashes the matching-relevant fields of cmd. The company is
// left out since the server may rewrite it for the echo.
func FingerprintOf(cmd Command) Fingerprint {
	return Fingerprint{Sum: xxhash.Sum64(canonical(cmd))}
}

// WideFingerprintOf returns a 128-bit fingerprint.
func WideFingerprintOf(cmd Command) Fingerprint {
	data := canonical(cmd)
	digest := blake3.Sum256(data)
	return Fingerprint{
		Sum: xxhash.Sum64(data),
		Ext: binary.LittleEndian.Uint64(digest[:8]),
	}
}

// canonical encodes the fields in a fixed order. The action is masked here
// and nowhere else.
func canonical(cmd Command) []byte {
	buf := make([]byte, 0, 32+len(cmd.Text))
	buf = binary.LittleEndian.AppendUint32(buf, cmd.Tile)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(cmd.Action.ID()))
	buf = binary.LittleEndian.AppendUint32(buf, cmd.P1)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.P2)
	buf = binary.LittleEndian.AppendUint64(buf, cmd.P3)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cmd.Text)))
	buf = append(buf, cmd.Text...)
	return buf
}
