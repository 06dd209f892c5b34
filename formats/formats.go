// SPDX-License-Identifier: EPL-2.0

// Package formats ties the individual decoders together: it builds a
// registry with every supported container and picks the right one for a
// blob of encoded bytes.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ik5/padmix/audio"
	"github.com/ik5/padmix/formats/aiff"
	"github.com/ik5/padmix/formats/flac"
	"github.com/ik5/padmix/formats/mp3"
	"github.com/ik5/padmix/formats/vorbis"
	"github.com/ik5/padmix/formats/wav"
)

// Format names used as registry keys.
const (
	WAV    = "wav"
	AIFF   = "aiff"
	MP3    = "mp3"
	Vorbis = "ogg"
	FLAC   = "flac"
)

// ErrUnknownFormat is returned when neither the header nor the file name
// identifies a supported container.
var ErrUnknownFormat = errors.New("unknown audio format")

// NewRegistry returns a registry holding every decoder in this module.
func NewRegistry() *audio.Registry {
	reg := audio.NewRegistry()
	reg.Register(WAV, wav.Decoder{})
	reg.Register(AIFF, aiff.Decoder{})
	reg.Register(MP3, mp3.Decoder{})
	reg.Register(Vorbis, vorbis.Decoder{})
	reg.Register(FLAC, flac.Decoder{})
	return reg
}

// Sniff identifies the container of data. Magic bytes win over the file
// name; the extension of name is only consulted when the header is not
// recognized. name may be empty.
func Sniff(data []byte, name string) (string, bool) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return WAV, true
	case len(data) >= 12 && string(data[0:4]) == "FORM" &&
		(string(data[8:12]) == "AIFF" || string(data[8:12]) == "AIFC"):
		return AIFF, true
	case bytes.HasPrefix(data, []byte("OggS")):
		return Vorbis, true
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FLAC, true
	case bytes.HasPrefix(data, []byte("ID3")):
		return MP3, true
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return MP3, true
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return WAV, true
	case ".aif", ".aiff", ".aifc":
		return AIFF, true
	case ".ogg", ".oga":
		return Vorbis, true
	case ".flac":
		return FLAC, true
	case ".mp3":
		return MP3, true
	}

	return "", false
}

// Decode sniffs data and opens it with the matching decoder from reg.
func Decode(reg *audio.Registry, data []byte, name string) (audio.Source, error) {
	format, ok := Sniff(data, name)
	if !ok {
		return nil, ErrUnknownFormat
	}

	dec, ok := reg.Get(format)
	if !ok {
		return nil, fmt.Errorf("%w: no decoder registered for %s", ErrUnknownFormat, format)
	}

	src, err := dec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return src, nil
}

// NewBufferDecoder returns an audio.DecodeFunc that sniffs, decodes and
// drains a clip into a buffer at the requested rate using reg.
func NewBufferDecoder(reg *audio.Registry) audio.DecodeFunc {
	return func(data []byte, name string, sampleRate int) (*audio.Buffer, error) {
		src, err := Decode(reg, data, name)
		if err != nil {
			return nil, err
		}
		return audio.ReadBuffer(src, sampleRate, src.BufSize())
	}
}
