package audio

import (
	"fmt"
	"math"
)

// LinearResampler 线性插值重采样器
// 效果片段和语音片段都很短，加载时一次性转换，不需要更高阶的滤波
type LinearResampler struct{}

// NewLinearResampler 创建线性插值重采样器
func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample 对每个输出帧在相邻两个输入帧之间插值
//
//	position = outFrame * inputRate / outputRate
//	out = in[floor(position)] * (1 - frac) + in[floor(position)+1] * frac
func (r *LinearResampler) Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channels: %d", channels)
	}

	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return []int16{}, nil
	}
	if inputRate == outputRate {
		out := make([]int16, inputFrames*channels)
		copy(out, input)
		return out, nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputFrames := int(math.Ceil(float64(inputFrames) / ratio))
	output := make([]int16, outputFrames*channels)
	last := inputFrames - 1

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		position := float64(outFrame) * ratio
		i0 := int(position)
		frac := position - float64(i0)
		if i0 >= last {
			i0, frac = last, 0
		}
		i1 := i0 + 1
		if i1 > last {
			i1 = last
		}
		for ch := 0; ch < channels; ch++ {
			a := float64(input[i0*channels+ch])
			b := float64(input[i1*channels+ch])
			output[outFrame*channels+ch] = clampInt16(a + (b-a)*frac)
		}
	}
	return output, nil
}

func clampInt16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
