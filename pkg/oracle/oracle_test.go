// 文件: pkg/oracle/oracle_test.go

package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedProducesPositivePrices(t *testing.T) {
	feed := NewFeed("MOON", 1_000_000, time.Millisecond)
	out := feed.Start()
	defer feed.Stop()

	for i := 0; i < 5; i++ {
		select {
		case update := <-out:
			assert.Equal(t, "MOON", update.Mint)
			assert.Greater(t, update.Price, uint64(0))
			assert.Greater(t, update.At, int64(0))
		case <-time.After(time.Second):
			t.Fatal("未在超时前收到价格更新")
		}
	}
}

func TestFeedStopClosesStream(t *testing.T) {
	feed := NewFeed("MOON", 1_000_000, time.Millisecond)
	out := feed.Start()
	feed.Stop()

	// 停止后流最终关闭
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("停止后输出流未关闭")
		}
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	update := PriceUpdate{Mint: "MOON", Price: 1_050_000, At: 1}
	b.Broadcast(update)

	require.Equal(t, update, <-sub1)
	require.Equal(t, update, <-sub2)

	b.Close()
	_, ok := <-sub1
	assert.False(t, ok)
}

func TestBroadcasterDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	// 超出订阅者缓冲的部分被丢弃，Broadcast 不阻塞
	for i := 0; i < 1100; i++ {
		b.Broadcast(PriceUpdate{Mint: "MOON", Price: uint64(i + 1)})
	}
	assert.Equal(t, 1024, len(sub))
}

func TestBroadcasterRunForwardsAndCloses(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe()

	in := make(chan PriceUpdate, 3)
	in <- PriceUpdate{Mint: "MOON", Price: 1}
	in <- PriceUpdate{Mint: "MOON", Price: 2}
	close(in)

	done := make(chan struct{})
	go func() {
		b.Run(in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run 未随输入流结束而退出")
	}

	assert.Equal(t, uint64(1), (<-sub).Price)
	assert.Equal(t, uint64(2), (<-sub).Price)
	_, ok := <-sub
	assert.False(t, ok)
}
