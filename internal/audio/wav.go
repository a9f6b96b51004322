package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// wavInfo describes the PCM payload of a RIFF/WAVE file.
type wavInfo struct {
	channels      uint16
	sampleRate    uint32
	byteRate      uint32
	blockAlign    uint16
	bitsPerSample uint16
	dataOffset    int64
	dataSize      int64
}

func (w wavInfo) durationSec() float64 {
	if w.byteRate == 0 {
		return 0
	}
	return float64(w.dataSize) / float64(w.byteRate)
}

// readWAVInfo parses the RIFF header and walks subchunks until "data".
// Only uncompressed PCM is supported; the normalizer guarantees that.
func readWAVInfo(f *os.File) (wavInfo, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return wavInfo{}, fmt.Errorf("short RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("not a RIFF/WAVE file")
	}

	var info wavInfo
	fmtSeen := false
	chunkHdr := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunkHdr); err != nil {
			return wavInfo{}, fmt.Errorf("no data chunk found: %w", err)
		}
		id := string(chunkHdr[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return wavInfo{}, fmt.Errorf("fmt chunk too small: %d bytes", size)
			}
			buf := make([]byte, 16)
			if _, err := io.ReadFull(f, buf); err != nil {
				return wavInfo{}, fmt.Errorf("short fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(buf[0:2])
			if audioFormat != 1 {
				return wavInfo{}, fmt.Errorf("unsupported audio format %d, only PCM supported", audioFormat)
			}
			info.channels = binary.LittleEndian.Uint16(buf[2:4])
			info.sampleRate = binary.LittleEndian.Uint32(buf[4:8])
			info.byteRate = binary.LittleEndian.Uint32(buf[8:12])
			info.blockAlign = binary.LittleEndian.Uint16(buf[12:14])
			info.bitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			fmtSeen = true
			// Skip any fmt extension plus the word-alignment pad byte.
			if rest := size - 16 + size%2; rest > 0 {
				if _, err := f.Seek(rest, io.SeekCurrent); err != nil {
					return wavInfo{}, err
				}
			}
		case "data":
			if !fmtSeen {
				return wavInfo{}, errors.New("data chunk before fmt chunk")
			}
			pos, err := f.Seek(0, io.SeekCurrent)
			if err != nil {
				return wavInfo{}, err
			}
			info.dataOffset = pos
			info.dataSize = size
			if info.blockAlign == 0 || info.byteRate == 0 {
				return wavInfo{}, errors.New("fmt chunk has zero block align or byte rate")
			}
			return info, nil
		default:
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return wavInfo{}, err
			}
		}
	}
}

// writePCMWAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCMWAV(w io.Writer, pcm []byte, sampleRate uint32, channels, bitsPerSample uint16) error {
	byteRate := sampleRate * uint32(channels) * uint32(bitsPerSample/8)
	blockAlign := channels * (bitsPerSample / 8)

	chunkSize := uint32(36 + len(pcm))
	subChunk2Size := uint32(len(pcm))

	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	binary.LittleEndian.PutUint32(header[4:8], chunkSize)
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], []byte("data"))
	binary.LittleEndian.PutUint32(header[40:44], subChunk2Size)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// Info describes a WAV file's audio parameters.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DurationSec   float64
}

// Probe reads a WAV file's header and returns its audio parameters.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	info, err := readWAVInfo(f)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return Info{
		SampleRate:    int(info.sampleRate),
		Channels:      int(info.channels),
		BitsPerSample: int(info.bitsPerSample),
		DurationSec:   info.durationSec(),
	}, nil
}
