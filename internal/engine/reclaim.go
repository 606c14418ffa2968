package engine

import (
	"context"
	"runtime"
	"runtime/debug"

	"github.com/cmoscardi/textbook-tts/internal/observability"
)

// Reclaim releases memory pressure after heavy inference work: it forces a
// garbage collection, returns freed pages to the OS, and asks each loaded
// resource to release device memory. Device release failures are logged,
// not propagated.
func Reclaim(ctx context.Context, logger *observability.Logger, caps ...Capability) {
	runtime.GC()
	debug.FreeOSMemory()

	for _, c := range caps {
		if c == nil {
			continue
		}
		if err := c.ReleaseDeviceMemory(ctx); err != nil {
			logger.Warn().Err(err).Msg("Device memory release failed")
		}
	}
}

// WithReclaim runs fn and reclaims memory afterwards on both the success
// and failure paths.
func WithReclaim(ctx context.Context, logger *observability.Logger, res Capability, fn func() error) error {
	defer Reclaim(ctx, logger, res)
	return fn()
}
