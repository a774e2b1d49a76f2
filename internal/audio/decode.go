package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Decode 根据内容嗅探格式并解码为 Clip，支持 WAV (PCM16) 和 MP3
func Decode(data []byte) (*Clip, error) {
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	case isWAV(data):
		return decodeWAV(data)
	case isMP3(data):
		return decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: %w", ErrDecode, ErrUnsupportedFormat)
	}
}

// DecodePCM16 解码无头的 16-bit 小端 PCM
func DecodePCM16(data []byte, sampleRate, channels int) (*Clip, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: empty pcm", ErrDecode)
	}
	clip, err := NewClip(bytesToInt16(data), sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return clip, nil
}

// EncodeWAV 把 Clip 编码为标准 44 字节头的 PCM16 WAV
func EncodeWAV(clip *Clip) []byte {
	return EncodeWAVPCM16(int16ToBytes(clip.Samples()), clip.SampleRate(), clip.Channels())
}

// EncodeWAVPCM16 给裸 PCM16 数据加 WAV 头
func EncodeWAVPCM16(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	blockAlign := channels * 2
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	// frame sync: 11 bits set
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// decodeWAV walks the RIFF chunks instead of assuming a fixed 44-byte header;
// some encoders put LIST chunks before data.
func decodeWAV(data []byte) (*Clip, error) {
	r := bytes.NewReader(data[12:])
	var (
		format    *wavFormat
		pcm       []byte
		chunkHead [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunkHead[:]); err != nil {
			break
		}
		id := string(chunkHead[0:4])
		size := int64(binary.LittleEndian.Uint32(chunkHead[4:8]))
		switch id {
		case "fmt ":
			var f wavFormat
			if err := binary.Read(io.LimitReader(r, size), binary.LittleEndian, &f); err != nil {
				return nil, fmt.Errorf("%w: fmt chunk: %v", ErrDecode, err)
			}
			if skip := size - 16; skip > 0 {
				_, _ = r.Seek(skip, io.SeekCurrent)
			}
			format = &f
		case "data":
			remain := int64(r.Len())
			if size > remain {
				size = remain
			}
			pcm = make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, fmt.Errorf("%w: data chunk: %v", ErrDecode, err)
			}
		default:
			_, _ = r.Seek(size, io.SeekCurrent)
		}
		if size%2 == 1 {
			_, _ = r.Seek(1, io.SeekCurrent)
		}
		if format != nil && pcm != nil {
			break
		}
	}

	if format == nil {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrDecode)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrDecode)
	}
	if format.AudioFormat != 1 || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: wav format=%d bits=%d: %w", ErrDecode, format.AudioFormat, format.BitsPerSample, ErrUnsupportedFormat)
	}
	return DecodePCM16(pcm, int(format.SampleRate), int(format.NumChannels))
}

// decodeMP3 go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 read: %v", ErrDecode, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: mp3 produced no samples", ErrDecode)
	}
	return DecodePCM16(pcm, dec.SampleRate(), 2)
}
