package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperengineering/sprout"
)

// FromConfig builds the remote selected by cfg.RemoteKind. It returns a
// nil Remote for offline configurations. The returned closer releases
// backend resources and is never nil.
func FromConfig(ctx context.Context, cfg sprout.Config, debug *sprout.DebugLogger) (sprout.Remote, io.Closer, error) {
	switch cfg.RemoteKind {
	case "", sprout.RemoteNone:
		return nil, nopCloser{}, nil
	case sprout.RemoteMemory:
		return NewMemory(), nopCloser{}, nil
	case sprout.RemoteHTTP:
		return NewHTTP(cfg.RemoteURL, cfg.APIKey, cfg.SourceID).WithDebugLogger(debug), nopCloser{}, nil
	case sprout.RemotePostgres:
		pg, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.SourceID)
		if err != nil {
			return nil, nopCloser{}, err
		}
		return pg, pg, nil
	default:
		return nil, nopCloser{}, fmt.Errorf("unknown remote kind %q", cfg.RemoteKind)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
