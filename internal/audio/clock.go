package audio

import "context"

// Clock 时间线时钟，单调递增，单位为秒
// 由调度器按已渲染的帧数推进，等价于输出设备的播放时钟
type Clock interface {
	Now() float64
	// WaitUntil 阻塞到时钟到达 t，或 ctx 取消
	WaitUntil(ctx context.Context, t float64) error
}

// Sleep 在时间线上等待 d 秒
func Sleep(ctx context.Context, clock Clock, d float64) error {
	return clock.WaitUntil(ctx, clock.Now()+d)
}
