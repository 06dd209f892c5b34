// SPDX-License-Identifier: EPL-2.0

package padmix

import (
	"log/slog"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/device"
	"github.com/ik5/padmix/internal/config"
	"github.com/ik5/padmix/internal/observe"
	"github.com/ik5/padmix/reverb"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithConfig replaces the default configuration. It is validated by New.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithOpener sets how the output device is opened on Activate. The
// default plays through the system mixer.
func WithOpener(open device.Opener) Option {
	return func(e *Engine) { e.opener = open }
}

// WithMetrics sets the instruments triggers and decodes are recorded on.
// The default registers on the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFetcher sets where impulse responses are read from. The default
// resolves the configured asset paths against Reverb.AssetsURL when set,
// and Reverb.AssetsDir otherwise.
func WithFetcher(f reverb.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithDecoder replaces the decoder used for both slot sources and impulse
// responses.
func WithDecoder(fn audio.DecodeFunc) Option {
	return func(e *Engine) { e.decode = fn }
}
