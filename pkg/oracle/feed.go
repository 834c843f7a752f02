// 文件: pkg/oracle/feed.go
// 模拟指数价格源
//
// 链上撮合依赖外部预言机喂指数价；离链模拟里用几何布朗运动 (GBM)
// 生成一条逼真的价格流，输出定点价格 (1e6 = 1.0)，供仿真脚本驱动
// SetIndexPrice 与资金费结算

package oracle

import (
	"math"
	"math/rand"
	"time"
)

// PriceUpdate 一次指数价格更新
type PriceUpdate struct {
	Mint  string
	Price uint64 // 定点，1e6 = 1.0
	At    int64  // UnixMilli
}

// Feed 指数价格生成器
type Feed struct {
	Mint       string
	Interval   time.Duration
	Volatility float64 // 年化波动率

	price       float64
	lastUpdated time.Time
	stopChan    chan struct{}
	outChan     chan PriceUpdate
}

// NewFeed 创建价格源，startPrice 为定点初始价
func NewFeed(mint string, startPrice uint64, interval time.Duration) *Feed {
	return &Feed{
		Mint:       mint,
		Interval:   interval,
		Volatility: 0.5, // 加密资产典型年化波动率
		price:      float64(startPrice),
		stopChan:   make(chan struct{}),
		// 带缓冲抵抗消费侧短暂停顿；满了走丢弃策略
		outChan:     make(chan PriceUpdate, 100),
		lastUpdated: time.Now(),
	}
}

// Start 启动生成循环，返回只读价格流
func (f *Feed) Start() <-chan PriceUpdate {
	go f.loop()
	return f.outChan
}

// Stop 停止生成，关闭输出流
func (f *Feed) Stop() {
	close(f.stopChan)
}

func (f *Feed) loop() {
	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()
	defer close(f.outChan)

	// 独立随机源，避开全局 rand 的互斥锁
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-f.stopChan:
			return

		case now := <-ticker.C:
			// GBM: S_new = S * exp(-0.5*σ²*dt + σ*sqrt(dt)*Z)，无漂移项
			// 乘法更新保证价格恒为正
			dt := now.Sub(f.lastUpdated).Hours() / 24 / 365
			if dt <= 0 {
				dt = 1e-9
			}
			sigma := f.Volatility
			z := r.NormFloat64()
			f.price *= math.Exp(-0.5*sigma*sigma*dt + sigma*math.Sqrt(dt)*z)
			f.lastUpdated = now

			price := uint64(f.price)
			if price == 0 {
				price = 1 // 定点价格为 0 会触发 ErrStaleOracle，钳到最小刻度
			}

			update := PriceUpdate{Mint: f.Mint, Price: price, At: now.UnixMilli()}

			// 非阻塞发送：行情只有最新值有意义，消费慢就丢弃
			select {
			case f.outChan <- update:
			default:
			}
		}
	}
}
