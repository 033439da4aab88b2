package session

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Phase is the coarse progress shown to the player.
type Phase uint8

const (
	PhaseConnecting Phase = iota
	PhaseAuthorizing
	PhaseWaiting
	PhaseDownloading
	PhaseLoading
	PhaseActive
	PhaseLagging
)

// Status is one progress report.
type Status struct {
	Phase Phase
	// Waiting is the number of clients ahead in the map queue.
	Waiting int
	// Received and Total describe the map download. Total is zero until the
	// server sends a size hint.
	Received int64
	Total    int64
	// Silence is how long the server has been quiet.
	Silence time.Duration
}

func (s Status) String() string {
	switch s.Phase {
	case PhaseConnecting:
		return "connecting"
	case PhaseAuthorizing:
		return "authorizing"
	case PhaseWaiting:
		return fmt.Sprintf("waiting for map, %d ahead", s.Waiting)
	case PhaseDownloading:
		if s.Total > 0 {
			pct := float64(s.Received) * 100 / float64(s.Total)
			return fmt.Sprintf("downloading map %s / %s (%.0f%%)",
				humanize.IBytes(uint64(s.Received)), humanize.IBytes(uint64(s.Total)), pct)
		}
		return "downloading map " + humanize.IBytes(uint64(s.Received))
	case PhaseLoading:
		return "loading map"
	case PhaseActive:
		return "active"
	case PhaseLagging:
		return fmt.Sprintf("server silent for %s", s.Silence.Truncate(time.Second))
	default:
		return fmt.Sprintf("phase_%d", uint8(s.Phase))
	}
}
