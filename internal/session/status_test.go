package session

import (
	"errors"
	"testing"
	"time"

	"lockstep/client/internal/net/proto"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Status{Phase: PhaseConnecting}, "connecting"},
		{Status{Phase: PhaseWaiting, Waiting: 2}, "waiting for map, 2 ahead"},
		{Status{Phase: PhaseDownloading, Received: 1024, Total: 2048}, "downloading map 1.0 KiB / 2.0 KiB (50%)"},
		{Status{Phase: PhaseDownloading, Received: 1024}, "downloading map 1.0 KiB"},
		{Status{Phase: PhaseLagging, Silence: 7400 * time.Millisecond}, "server silent for 7s"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Fatalf("got %q, want %q", got, tt.want)
		}
	}
}

func TestRemoteReasonClassification(t *testing.T) {
	tests := []struct {
		code proto.ErrorCode
		kind Kind
	}{
		{proto.ErrorWrongPassword, KindAuthFailure},
		{proto.ErrorNotOnAllowList, KindAuthFailure},
		{proto.ErrorNewGRFMismatch, KindContentMismatch},
		{proto.ErrorDesync, KindDesync},
		{proto.ErrorKicked, KindServerDisconnect},
	}
	for _, tt := range tests {
		reason := remoteReason(tt.code, "")
		if reason.Kind != tt.kind || !reason.Remote || reason.Detail != tt.code.String() {
			t.Fatalf("%s: unexpected reason %+v", tt.code, reason)
		}
	}
}

func TestReasonUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	var err error = &Reason{Kind: KindLoadFailed, Detail: "load map", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "session: load_failed: load map: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	reason, ok := AsReason(err)
	if !ok || reason.Kind != KindLoadFailed {
		t.Fatalf("AsReason failed")
	}
}
