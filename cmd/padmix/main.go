// SPDX-License-Identifier: EPL-2.0

// Command padmix loads up to four clips into the pads, fires one trigger
// at a position and either plays it or renders it to a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ik5/padmix"
	"github.com/ik5/padmix/device"
	"github.com/ik5/padmix/formats/wav"
	"github.com/ik5/padmix/internal/config"
	"github.com/ik5/padmix/internal/observe"
	"github.com/ik5/padmix/mix"
	"github.com/ik5/padmix/reverb"
	"github.com/ik5/padmix/utils"
)

type options struct {
	configPath string
	sources    [mix.NumSlots]string
	mode       string
	x, y       float64
	offset     float64
	reverb     string
	wet        float64
	render     string
	tail       time.Duration
}

func main() {
	os.Exit(run())
}

func run() int {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to a YAML configuration file")
	flag.StringVar(&o.sources[mix.TopLeft], "tl", "", "clip for the top-left pad")
	flag.StringVar(&o.sources[mix.TopRight], "tr", "", "clip for the top-right pad")
	flag.StringVar(&o.sources[mix.BottomLeft], "bl", "", "clip for the bottom-left pad")
	flag.StringVar(&o.sources[mix.BottomRight], "br", "", "clip for the bottom-right pad")
	flag.StringVar(&o.mode, "mode", "blend", "axis mode: blend or pan")
	flag.Float64Var(&o.x, "x", 0.5, "horizontal trigger position in [0, 1]")
	flag.Float64Var(&o.y, "y", 0.5, "vertical trigger position in [0, 1]")
	flag.Float64Var(&o.offset, "offset", 0, "pan bias in units of the configured pan_offset, usually -1, 0 or 1")
	flag.StringVar(&o.reverb, "reverb", "", "reverb preset: none, hall, bathroom, tunnel, hallway")
	flag.Float64Var(&o.wet, "wet", -1, "reverb wet fraction in [0, 1]; negative keeps the configured value")
	flag.StringVar(&o.render, "render", "", "write the result to this WAV file instead of playing it")
	flag.DurationVar(&o.tail, "tail", time.Second, "audio kept after the last voice ends")
	flag.Parse()

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "padmix: %v\n", err)
			return 1
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel.Level()}))
	slog.SetDefault(logger)

	mode, err := mix.ParseAxisMode(o.mode)
	if err != nil {
		slog.Error("invalid mode", "err", err)
		return 2
	}
	presetName := o.reverb
	if presetName == "" {
		presetName = cfg.Reverb.Preset
	}
	preset, err := reverb.ParsePreset(presetName)
	if err != nil {
		slog.Error("invalid reverb preset", "err", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		slog.Info("serving metrics", "addr", cfg.Metrics.Listen)
	}

	clips, err := readSources(ctx, o.sources, cfg.DecodeWorkers)
	if err != nil {
		slog.Error("failed to read sources", "err", err)
		return 1
	}

	var null *device.Null
	opener := device.OpenOto
	if o.render != "" {
		null = device.NewNull(cfg.SampleRate)
		opener = device.NullOpener(null)
	}

	eng, err := padmix.New(
		padmix.WithConfig(cfg),
		padmix.WithLogger(logger),
		padmix.WithOpener(opener),
	)
	if err != nil {
		slog.Error("failed to create engine", "err", err)
		return 1
	}
	defer eng.Close()

	for _, s := range mix.Slots {
		if clips[s] == nil {
			continue
		}
		if err := eng.SetSource(s, clips[s], filepath.Base(o.sources[s])); err != nil {
			slog.Error("failed to assign source", "slot", s, "err", err)
			return 1
		}
	}
	eng.SetReverbPreset(preset)
	if o.wet >= 0 {
		eng.SetReverbWet(o.wet)
	}

	if err := eng.Activate(ctx); err != nil {
		slog.Error("failed to activate engine", "err", err)
		return 1
	}
	if err := eng.WaitLoaded(ctx); err != nil {
		slog.Error("interrupted while loading", "err", err)
		return 1
	}
	for _, s := range mix.Slots {
		if clips[s] != nil && !eng.Loaded(s) {
			slog.Warn("pad will stay silent", "slot", s, "file", o.sources[s])
		}
	}

	pos := mix.Position{X: o.x, Y: o.y}
	n := eng.Trigger(pos, mode, o.offset*cfg.PanOffset)
	slog.Info("triggered", "mode", mode, "x", o.x, "y", o.y, "offset", o.offset*cfg.PanOffset, "voices", n)

	if null != nil {
		frames, err := renderToFile(ctx, eng, null, o.render, o.tail, cfg.BufferFrames())
		if err != nil {
			slog.Error("render failed", "err", err)
			return 1
		}
		slog.Info("rendered", "file", o.render, "frames", frames)
		return 0
	}

	if err := waitVoices(ctx, eng); err != nil {
		slog.Info("interrupted")
		return 0
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.tail):
	}
	return 0
}

// readSources reads every named pad file concurrently. Empty names are
// left nil.
func readSources(ctx context.Context, paths [mix.NumSlots]string, workers int) ([mix.NumSlots][]byte, error) {
	var out [mix.NumSlots][]byte
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, p := range paths {
		if p == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("%s: %w", mix.Slot(i), err)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// waitVoices polls until nothing is playing.
func waitVoices(ctx context.Context, eng *padmix.Engine) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for len(eng.Voices()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// renderToFile pulls dev block by block until every voice has finished,
// then for tail more, and writes the result as 16-bit stereo WAV.
func renderToFile(ctx context.Context, eng *padmix.Engine, dev *device.Null, path string, tail time.Duration, block int) (int, error) {
	if block <= 0 {
		block = 1024
	}
	rate := dev.SampleRate()
	tailFrames := int(tail.Seconds() * float64(rate))

	var out []float32
	for len(eng.Voices()) > 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		out = append(out, dev.Pull(block)...)
	}
	for rendered := 0; rendered < tailFrames; rendered += block {
		out = append(out, dev.Pull(min(block, tailFrames-rendered))...)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	pcm := utils.Int16sFromFloat32(nil, out)
	if err := wav.WritePCM16(f, rate, 2, pcm); err != nil {
		f.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return len(out) / 2, nil
}
