// 文件: pkg/fixmath/math.go
// 定点数数学工具
//
// 【核心原则】
// 1. 所有金额/价格用 int64/uint64 定点数，杜绝浮点误差
// 2. 先乘后除的中间结果用 128 位，避免提前溢出
// 3. 所有运算都是 checked：溢出/除零返回 ErrMathOverflow，绝不静默回绕
// 4. 除法一律向下取整 (floor)，保证跨实现可复现

package fixmath

import (
	"errors"
	"math"
	"math/bits"
)

var (
	// ErrMathOverflow 算术溢出/下溢/除零
	// 所有调用方必须向上传播，不允许吞掉
	ErrMathOverflow = errors.New("math overflow")
)

// =============================================================================
// 128 位中间域乘除
// =============================================================================

// MulDiv 计算 a * b / den，中间结果 128 位
//
// 【为什么需要】
// 价格计算形如 amount * price / scale，a*b 很容易超过 uint64
// bits.Mul64 给出 128 位乘积，bits.Div64 在商不溢出时做 128/64 除法
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrMathOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// 商会超过 uint64
		return 0, ErrMathOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

// =============================================================================
// checked 运算 (uint64)
// =============================================================================

// CheckedAdd a + b，溢出报错
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// CheckedSub a - b，下溢报错
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathOverflow
	}
	return diff, nil
}

// CheckedMul a * b，溢出报错
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrMathOverflow
	}
	return lo, nil
}

// CheckedDiv a / b，除零报错
func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrMathOverflow
	}
	return a / b, nil
}

// =============================================================================
// checked 运算 (int64，资金费累计等有符号量)
// =============================================================================

// CheckedAddI64 有符号加法
func CheckedAddI64(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// CheckedSubI64 有符号减法
func CheckedSubI64(a, b int64) (int64, error) {
	if b == math.MinInt64 {
		return 0, ErrMathOverflow
	}
	return CheckedAddI64(a, -b)
}

// MulDivI64 有符号 a * b / den，符号单独处理，绝对值走 128 位通道
// 结果向零取整 (与定点盈亏计算约定一致)
func MulDivI64(a, b int64, den uint64) (int64, error) {
	neg := false
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		neg = !neg
		ua = uint64(-a)
	}
	if b < 0 {
		neg = !neg
		ub = uint64(-b)
	}
	quo, err := MulDiv(ua, ub, den)
	if err != nil {
		return 0, err
	}
	if neg {
		if quo > uint64(math.MaxInt64)+1 {
			return 0, ErrMathOverflow
		}
		if quo == uint64(math.MaxInt64)+1 {
			return math.MinInt64, nil
		}
		return -int64(quo), nil
	}
	if quo > uint64(math.MaxInt64) {
		return 0, ErrMathOverflow
	}
	return int64(quo), nil
}

// =============================================================================
// 饱和运算 (仅用于统计计数器：成交量、累计买入等)
// =============================================================================

// SatAdd 饱和加法，到顶封在 MaxUint64
// 【注意】只允许用在"展示用"计数器上，资金路径必须走 checked
func SatAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// SatSub 饱和减法，到底封在 0
func SatSub(a, b uint64) uint64 {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0
	}
	return diff
}

// =============================================================================
// 辅助
// =============================================================================

// Clamp 限制 v 在 [lo, hi]
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AbsI64 绝对值 (MinInt64 视为溢出)
func AbsI64(v int64) (uint64, error) {
	if v == math.MinInt64 {
		return uint64(math.MaxInt64) + 1, nil
	}
	if v < 0 {
		return uint64(-v), nil
	}
	return uint64(v), nil
}
