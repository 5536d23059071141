package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SamplingConfig throttles records that share a level and message.
type SamplingConfig struct {
	Enabled bool

	// Tick is the window after which counters reset.
	Tick time.Duration

	// Threshold records per key are always written in each window; after that
	// only every Every-th record is.
	Threshold uint64
	Every     uint64

	// NeverSample lists message prefixes that bypass sampling.
	NeverSample []string
}

// DefaultSamplingConfig returns the production sampling settings.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Enabled:     true,
		Tick:        time.Minute,
		Threshold:   20,
		Every:       50,
		NeverSample: []string{"audit:", "command"},
	}
}

type sampleWindow struct {
	mu     sync.Mutex
	start  time.Time
	counts map[string]uint64
}

type samplingHandler struct {
	next   slog.Handler
	cfg    SamplingConfig
	window *sampleWindow
	now    func() time.Time
}

// NewSamplingHandler wraps h with sampling. It returns h unchanged when sampling is disabled.
func NewSamplingHandler(h slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return h
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.Every == 0 {
		cfg.Every = 1
	}
	return &samplingHandler{
		next:   h,
		cfg:    cfg,
		window: &sampleWindow{counts: make(map[string]uint64)},
		now:    time.Now,
	}
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, p := range h.cfg.NeverSample {
		if strings.HasPrefix(r.Message, p) {
			return h.next.Handle(ctx, r)
		}
	}
	if h.admit(r.Level.String() + ":" + r.Message) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *samplingHandler) admit(key string) bool {
	w := h.window
	w.mu.Lock()
	defer w.mu.Unlock()

	now := h.now()
	if now.Sub(w.start) >= h.cfg.Tick {
		w.start = now
		clear(w.counts)
	}
	w.counts[key]++
	n := w.counts[key]
	return n <= h.cfg.Threshold || (n-h.cfg.Threshold)%h.cfg.Every == 0
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{next: h.next.WithAttrs(attrs), cfg: h.cfg, window: h.window, now: h.now}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{next: h.next.WithGroup(name), cfg: h.cfg, window: h.window, now: h.now}
}
