// SPDX-License-Identifier: EPL-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ik5/padmix"
	"github.com/ik5/padmix/device"
	"github.com/ik5/padmix/formats/wav"
	"github.com/ik5/padmix/internal/audiotest"
	"github.com/ik5/padmix/internal/config"
	"github.com/ik5/padmix/mix"
)

func TestReadSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kick := filepath.Join(dir, "kick.wav")
	if err := os.WriteFile(kick, []byte("kick"), 0o600); err != nil {
		t.Fatal(err)
	}

	var paths [mix.NumSlots]string
	paths[mix.BottomRight] = kick

	got, err := readSources(context.Background(), paths, 2)
	if err != nil {
		t.Fatalf("readSources: %v", err)
	}
	if string(got[mix.BottomRight]) != "kick" {
		t.Errorf("bottom-right = %q, want kick", got[mix.BottomRight])
	}
	for _, s := range []mix.Slot{mix.TopLeft, mix.TopRight, mix.BottomLeft} {
		if got[s] != nil {
			t.Errorf("%v = %q, want nil", s, got[s])
		}
	}

	paths[mix.TopLeft] = filepath.Join(dir, "missing.wav")
	if _, err := readSources(context.Background(), paths, 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("readSources() with a missing file = %v, want fs.ErrNotExist", err)
	}
}

func TestRenderToFile(t *testing.T) {
	t.Parallel()

	const rate = 8000

	cfg := config.Default()
	cfg.SampleRate = rate
	null := device.NewNull(rate)

	eng, err := padmix.New(
		padmix.WithConfig(cfg),
		padmix.WithLogger(slog.New(slog.DiscardHandler)),
		padmix.WithOpener(device.NullOpener(null)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if err := eng.SetSource(mix.TopLeft, audiotest.ConstantWAV16(rate, 800, 16384), "tone.wav"); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := eng.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
	if err := eng.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if n := eng.Trigger(mix.Position{}, mix.Blend, 0); n != 1 {
		t.Fatalf("Trigger() = %d, want 1", n)
	}

	out := filepath.Join(t.TempDir(), "out.wav")
	frames, err := renderToFile(ctx, eng, null, out, 50*time.Millisecond, 160)
	if err != nil {
		t.Fatalf("renderToFile: %v", err)
	}
	// 800 frames rounded up to whole blocks, plus 400 frames of tail.
	if frames != 1200 {
		t.Errorf("frames = %d, want 1200", frames)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	src, err := wav.Decoder{}.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode rendered file: %v", err)
	}
	defer src.Close()
	if src.SampleRate() != rate || src.Channels() != 2 {
		t.Errorf("rendered %d ch @ %d Hz, want 2 ch @ %d Hz", src.Channels(), src.SampleRate(), rate)
	}

	buf := make([]float32, 2)
	if _, err := src.ReadSamples(buf); err != nil {
		t.Fatalf("ReadSamples: %v", err)
	}
	if buf[0] <= 0 || math.Abs(float64(buf[0]-buf[1])) > 1e-3 {
		t.Errorf("first frame = %v, want equal positive channels at center pan", buf)
	}
}
