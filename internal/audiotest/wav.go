// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"bytes"
	"encoding/binary"
)

// WAV16 builds a canonical 44-byte-header PCM 16-bit WAV file.
func WAV16(sampleRate, channels int, samples []int16) []byte {
	buf := new(bytes.Buffer)

	numChannels := uint16(channels)
	byteRate := uint32(sampleRate) * uint32(numChannels) * 2
	blockAlign := numChannels * 2
	dataSize := uint32(len(samples) * 2)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, numChannels)
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// ConstantWAV16 returns a mono clip of frames samples all set to value.
func ConstantWAV16(sampleRate, frames int, value int16) []byte {
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = value
	}
	return WAV16(sampleRate, 1, samples)
}
