// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV16 writes a mono 16-bit PCM WAV at sampleRate.
func WriteWAV16(w io.Writer, sampleRate int, samples []int16) error {
	return WritePCM16(w, sampleRate, 1, samples)
}

// WritePCM16 writes interleaved 16-bit PCM with one or two channels.
// The header is assembled in a single 44-byte write and the payload is
// streamed in fixed-size chunks.
func WritePCM16(w io.Writer, sampleRate, channels int, samples []int16) error {
	if channels != 1 && channels != 2 {
		return ErrInvalidChannelCount
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	byteRate := uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample/8)
	blockAlign := numChannels * (bitsPerSample / 8)
	dataSize := uint32(len(samples) * 2)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("%w", err)
	}

	const chunkSize = 8192
	buf := make([]byte, min(len(samples), chunkSize)*2)

	for i := 0; i < len(samples); i += chunkSize {
		chunk := samples[i:min(i+chunkSize, len(samples))]
		out := buf[:len(chunk)*2]
		for j, s := range chunk {
			binary.LittleEndian.PutUint16(out[j*2:], uint16(s))
		}
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("%w", err)
		}
	}

	return nil
}
