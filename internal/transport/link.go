// Package transport moves recordings and messages between the paired
// capture device and the ingestion daemon.
//
// Inbound there are two paths, mirroring how the capture device operates:
//
//   - File transfer: the device copies the clip audio plus a JSON sidecar
//     with the recording window into an inbox directory; [DropWatcher]
//     picks the pair up and hands it to the [Handler].
//   - Direct message: when the device already produced a transcript
//     locally, it sends the text plus window over the websocket link
//     ([WSLink]) with no audio at all.
//
// Outbound, [Link.SendOrQueue] delivers payloads to the device when it is
// reachable and otherwise spools them durably ([Spool]) for later delivery.
// Queuing never blocks the caller.
package transport

import (
	"context"
	"encoding/json"

	"github.com/sidelinehq/sideline/pkg/types"
)

// ClipDelivery announces a clip file received via the file-transfer path.
type ClipDelivery struct {
	// Path is the local path of the received audio file. The pipeline takes
	// ownership of the file and deletes it when done.
	Path string

	// SourcePath is the clip's originating path on the capture device, kept
	// for diagnostics.
	SourcePath string

	// Window is the in-game time span the clip covers.
	Window types.Window
}

// TranscriptDelivery carries a transcript produced on the capture device via
// the direct-message path. There is no audio to transcribe or upload.
type TranscriptDelivery struct {
	Text   string
	Window types.Window
}

// Handler consumes deliveries from the capture device. The ingestion
// controller implements it; returned errors are logged by the transport and
// never retried here — retry belongs to the device's own resend logic.
type Handler interface {
	HandleClip(ctx context.Context, d ClipDelivery) error
	HandleTranscript(ctx context.Context, d TranscriptDelivery) error
}

// SendState reports how [Link.SendOrQueue] handled a payload.
type SendState int

const (
	// SendSent means the payload was accepted for immediate delivery.
	SendSent SendState = iota

	// SendQueued means the device was unreachable and the payload was
	// spooled for later delivery.
	SendQueued
)

// String implements fmt.Stringer.
func (s SendState) String() string {
	switch s {
	case SendSent:
		return "sent"
	case SendQueued:
		return "queued"
	}
	return "unknown"
}

// Outbound is a payload destined for the capture device, e.g. an ingest
// acknowledgement or a session-state notification.
type Outbound struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Link is the outbound side of the companion connection.
//
// Implementations must be safe for concurrent use.
type Link interface {
	// IsReachable reports whether the capture device is currently
	// connected.
	IsReachable() bool

	// SendOrQueue delivers out immediately when the device is reachable,
	// or spools it for later delivery. It never blocks on a queued
	// payload.
	SendOrQueue(ctx context.Context, out Outbound) (SendState, error)
}
