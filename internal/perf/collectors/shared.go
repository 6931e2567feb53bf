package collectors

import "context"

// bgCtx is used by collectors that shell out for a quick, bounded
// lookup (e.g. pidof) outside of any per-request context. Collection
// ticks are not tied to a caller's request lifetime.
func bgCtx() context.Context {
	return context.Background()
}
