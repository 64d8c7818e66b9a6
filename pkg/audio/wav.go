package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// EncodeWAV wraps raw PCM bytes in a minimal RIFF/WAVE container. The
// bundled HTTP recognizers and playback device both speak WAV, so this is
// the interchange format between capture, recognition, and playback.
func EncodeWAV(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(f.BytesPerSecond())
	blockAlign := uint16(f.Channels * f.BitsPerSample / 8)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV extracts the raw PCM payload and format from a RIFF/WAVE
// container. It walks the RIFF chunks rather than assuming a fixed 44-byte
// header because the fmt chunk size varies between encoders.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 {
		return nil, Format{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return nil, Format{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var f Format
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				f.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				f.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				f.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return nil, Format{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			end := offset + 8 + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[offset+8 : end], f, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, errors.New("audio: WAV data missing data chunk")
}
