package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Host is the boundary between the protocol core and the node it runs on.
// Every method is called from the goroutine that drives the Opera.
type Host interface {
	// Log receives every trace and warn event. args are slog key/value pairs.
	Log(event Event, desc string, args ...any)
	// ShouldRunSerena is called at the colored tree root to switch the whole
	// network in or out of coloring mode.
	ShouldRunSerena(run bool)
	// ShouldRunSerenaResponse acknowledges Opera.NotifyShouldRunSerena.
	ShouldRunSerenaResponse()
	// SetNbColor publishes the number of colors used by the colored tree.
	SetNbColor(nb int)
	// SetColorInfo publishes the node color and the colors used by its
	// neighbors, all 1-based.
	SetColorInfo(color uint8, neighborColors []uint8)
}

type NopHost struct{}

func (NopHost) Log(Event, string, ...any)   {}
func (NopHost) ShouldRunSerena(bool)        {}
func (NopHost) ShouldRunSerenaResponse()    {}
func (NopHost) SetNbColor(int)              {}
func (NopHost) SetColorInfo(uint8, []uint8) {}

// most distinct warnings remembered by a LogHost, the least recently
// written ones are dropped first
const maxWarningKeys = 1024

// LogHost writes events to a slog.Logger. Identical warnings are written
// at most once per window; Diagnostics.Warnings still counts all of them.
// Sweep has to be called periodically to release expired warnings.
type LogHost struct {
	NopHost
	Logger *slog.Logger
	seen   *ttlcache.Cache[string, struct{}]
}

func NewLogHost(logger *slog.Logger, window time.Duration) *LogHost {
	return &LogHost{
		Logger: logger,
		seen: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](window),
			ttlcache.WithCapacity[string, struct{}](maxWarningKeys),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

func (h *LogHost) Log(event Event, desc string, args ...any) {
	level := slog.LevelDebug
	if event.IsWarning() {
		level = slog.LevelWarn
		key := event.String() + fmt.Sprint(args...)
		if h.seen.Has(key) {
			return
		}
		h.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}
	h.Logger.Log(context.Background(), level, desc, append([]any{"event", event}, args...)...)
}

// Sweep drops the warnings whose window has passed.
func (h *LogHost) Sweep() {
	h.seen.DeleteExpired()
}
