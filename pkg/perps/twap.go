// 文件: pkg/perps/twap.go
// 标记价格 TWAP 采样环
// 固定容量环形缓冲，每笔成交追加一个样本，均值用于平滑标记价格读数

package perps

// TwapSample 单个采样点
type TwapSample struct {
	Price uint64
	At    int64
}

// TwapRing 固定窗口环形缓冲
type TwapRing struct {
	samples []TwapSample
	next    int
	filled  bool
}

func NewTwapRing(window int) *TwapRing {
	return &TwapRing{samples: make([]TwapSample, window)}
}

// Push 追加样本，写满后覆盖最旧的
func (r *TwapRing) Push(price uint64, at int64) {
	r.samples[r.next] = TwapSample{Price: price, At: at}
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.filled = true
	}
}

// Len 当前样本数
func (r *TwapRing) Len() int {
	if r.filled {
		return len(r.samples)
	}
	return r.next
}

// Average 窗口均价，无样本返回 0
func (r *TwapRing) Average() uint64 {
	n := r.Len()
	if n == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i < n; i++ {
		sum += r.samples[i].Price
	}
	return sum / uint64(n)
}
