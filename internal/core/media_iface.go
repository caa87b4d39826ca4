package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Live/internal/domain"
)

// MediaLink is one direct media connection to a single remote participant.
// Descriptions and candidates are carried as opaque JSON so the relay never has to understand them.
type MediaLink interface {
	// CreateOffer produces the local offer and applies it as local description.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// AcceptOffer applies a remote offer and returns the local answer.
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	// AcceptAnswer applies the remote answer to a previously created offer.
	AcceptAnswer(ctx context.Context, answer json.RawMessage) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(candidate json.RawMessage) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(json.RawMessage))
	// OnConnected fires once the transport is up.
	OnConnected(func())
	// OnFailed fires when the underlying transport fails or closes.
	OnFailed(func())
	// Close should stop all underlying media resources.
	Close() error
}

// MediaLinkFactory creates a link towards the given remote participant.
type MediaLinkFactory func(remote domain.ParticipantID) (MediaLink, error)
