package mashup

import "errors"

// 播放一次 mashup 过程中的错误分类
var (
	// ErrSynthesis 语音或音效生成失败、返回为空
	ErrSynthesis = errors.New("synthesis failure")
	// ErrDecode 音频字节无法解码为可播放片段
	ErrDecode = errors.New("decode failure")
	// ErrSelection 选词服务不可用或返回无效数据，总是由本地回退兜底
	ErrSelection = errors.New("selection failure")
	// ErrSchedulingSkipped 计算出的开始时间已过，记录日志后跳过
	ErrSchedulingSkipped = errors.New("scheduling skipped")
	// ErrInvalidPlan 替换位置越界或重复
	ErrInvalidPlan = errors.New("invalid plan")
)
