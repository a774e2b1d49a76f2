package audio

import "fmt"

// Resampler 音频重采样器接口
// 用于在不同采样率之间转换音频数据
type Resampler interface {
	// Resample 重采样交错 PCM 数据
	// input: 输入样本 (int16)
	// inputRate/outputRate: 采样率 (Hz)
	// channels: 声道数
	Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error)
}

// Conform 把 Clip 转换为输出设备的采样率和声道数
// 格式已一致时直接返回原 Clip
func Conform(clip *Clip, sampleRate, channels int, resampler Resampler) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("%w: nil clip", ErrDecode)
	}
	if clip.SampleRate() == sampleRate && clip.Channels() == channels {
		return clip, nil
	}
	if resampler == nil {
		resampler = NewLinearResampler()
	}

	samples := remapChannels(clip.Samples(), clip.Channels(), channels)
	if clip.SampleRate() != sampleRate {
		var err error
		samples, err = resampler.Resample(samples, clip.SampleRate(), sampleRate, channels)
		if err != nil {
			return nil, err
		}
	}
	return NewClip(samples, sampleRate, channels)
}

// remapChannels 单声道复制到所有声道，多声道下混为单声道，
// 其他组合按声道序号取模映射
func remapChannels(input []int16, from, to int) []int16 {
	if from == to {
		return input
	}
	frames := len(input) / from
	output := make([]int16, frames*to)
	for f := 0; f < frames; f++ {
		src := input[f*from : (f+1)*from]
		dst := output[f*to : (f+1)*to]
		if to == 1 {
			var sum int
			for _, s := range src {
				sum += int(s)
			}
			dst[0] = int16(sum / from)
			continue
		}
		for ch := range dst {
			dst[ch] = src[ch%from]
		}
	}
	return output
}

// bytesToInt16 将 byte 数组转换为 int16 数组 (Little Endian)
func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// int16ToBytes 将 int16 数组转换为 byte 数组 (Little Endian)
func int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}
