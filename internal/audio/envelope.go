package audio

import (
	"errors"
	"fmt"
	"math"
)

// ExponentialFloor 指数斜坡的最小目标值，指数曲线无法到达 0
const ExponentialFloor = 0.0001

var (
	ErrBreakpointInPast     = errors.New("envelope breakpoint at or before now")
	ErrNonMonotonicEnvelope = errors.New("envelope breakpoint times must be strictly increasing")
)

// RampKind 斜坡曲线类型
type RampKind int

const (
	RampLinear RampKind = iota
	RampExponential
)

func (k RampKind) String() string {
	switch k {
	case RampLinear:
		return "linear"
	case RampExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// Breakpoint 包络断点：在 Time（时间线绝对秒）时增益到达 Target
// 从上一个断点到本断点之间按 Ramp 曲线过渡
type Breakpoint struct {
	Time   float64
	Target float64
	Ramp   RampKind
}

// envelope 单个事件上的增益自动化轨迹
// anchor 是第一次应用包络时的 (时间, 增益)，第一段斜坡从这里出发
type envelope struct {
	anchorTime  float64
	anchorValue float64
	points      []Breakpoint
}

// validateBreakpoints 校验一组待追加的断点
// 时间已过的断点被跳过并计入 skipped，全部过期时返回 ErrBreakpointInPast
func validateBreakpoints(now float64, lastTime float64, bps []Breakpoint) (points []Breakpoint, skipped int, err error) {
	points = make([]Breakpoint, 0, len(bps))
	prev := lastTime
	for i, bp := range bps {
		if bp.Time <= prev {
			return nil, 0, fmt.Errorf("%w: breakpoint %d at %.4fs after %.4fs", ErrNonMonotonicEnvelope, i, bp.Time, prev)
		}
		prev = bp.Time
		if bp.Time <= now {
			skipped++
			continue
		}

		target := math.Max(0, math.Min(1, bp.Target))
		if bp.Ramp == RampExponential && target < ExponentialFloor {
			target = ExponentialFloor
		}
		points = append(points, Breakpoint{Time: bp.Time, Target: target, Ramp: bp.Ramp})
	}
	if len(points) == 0 && skipped > 0 {
		return nil, skipped, fmt.Errorf("%w: all %d breakpoints at or before now %.4fs", ErrBreakpointInPast, skipped, now)
	}
	return points, skipped, nil
}

func (e *envelope) lastTime() float64 {
	if len(e.points) == 0 {
		return math.Inf(-1)
	}
	return e.points[len(e.points)-1].Time
}

// append 追加已校验的断点；首次追加时记录锚点
func (e *envelope) append(now, current float64, bps []Breakpoint) {
	if len(e.points) == 0 {
		e.anchorTime = now
		e.anchorValue = current
	}
	e.points = append(e.points, bps...)
}

// gainAt 计算时间 t 的增益
func (e *envelope) gainAt(t float64) float64 {
	if len(e.points) == 0 {
		return 1
	}
	if t <= e.anchorTime {
		return e.anchorValue
	}

	fromTime, fromValue := e.anchorTime, e.anchorValue
	for _, bp := range e.points {
		if t < bp.Time {
			return interpolate(fromTime, fromValue, bp, t)
		}
		fromTime, fromValue = bp.Time, bp.Target
	}
	return fromValue
}

func interpolate(t0, v0 float64, bp Breakpoint, t float64) float64 {
	span := bp.Time - t0
	if span <= 0 {
		return bp.Target
	}
	frac := (t - t0) / span
	switch bp.Ramp {
	case RampExponential:
		v0 = math.Max(v0, ExponentialFloor)
		v1 := math.Max(bp.Target, ExponentialFloor)
		return v0 * math.Pow(v1/v0, frac)
	default:
		return v0 + (bp.Target-v0)*frac
	}
}
