// 文件: pkg/oracle/broadcaster.go
// 价格扇出
//
// 一条 Feed 的输出要同时喂给多个消费方 (资金费 crank、风险刷新、行情缓存)，
// 慢消费方不能拖住别人：订阅者各持一条带缓冲 Channel，满了直接丢

package oracle

import "sync"

// Broadcaster 价格广播器
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers []chan PriceUpdate
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe 新增一个订阅者，返回只读价格流
func (b *Broadcaster) Subscribe() <-chan PriceUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan PriceUpdate, 1024)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast 分发一条更新；订阅者缓冲满时对其丢弃，不阻塞
func (b *Broadcaster) Broadcast(p PriceUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}

// Run 消费一条输入流并广播，流关闭后自动 Close
func (b *Broadcaster) Run(in <-chan PriceUpdate) {
	for p := range in {
		b.Broadcast(p)
	}
	b.Close()
}

// Close 关闭所有订阅者的 Channel
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
