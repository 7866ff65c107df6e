// Package channels contains the per-channel conversion adapters. Each
// adapter obtains its own credentials, sends to one provider, and
// classifies its own failures; adapters never affect each other.
package channels

import (
	"context"
	"errors"

	"github.com/LeadSpringHQ/leadspring-go/internal/domain/attribution"
	"github.com/LeadSpringHQ/leadspring-go/internal/domain/user"
)

// ErrChannelUnavailable marks a send skipped because no usable credential
// exists. It short-circuits before any network call.
var ErrChannelUnavailable = errors.New("channel unavailable")

// SendRequest carries everything an adapter needs for one conversion send.
type SendRequest struct {
	Event  *attribution.ConversionEvent
	Config *attribution.PostbackConfig
	Lead   *user.Lead // nil for uncorrelated events

	// First-touch visitor context, used by Meta's user_data matching.
	ClientIP        string
	ClientUserAgent string
}

// Adapter is the per-channel send contract.
type Adapter interface {
	// Source is the adapter's ledger source tag.
	Source() string
	// Eligible reports whether this channel applies to the request; the
	// string explains a skip for the ledger.
	Eligible(req *SendRequest) (bool, string)
	// Send uploads the conversion. A wrapped ErrChannelUnavailable means
	// no network call was made; any other error is the provider's
	// rejection or a transport failure.
	Send(ctx context.Context, req *SendRequest) error
}

// TokenSource abstracts the provider token managers for the adapters.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
