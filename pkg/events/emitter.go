// 文件: pkg/events/emitter.go
// 事件发射器
//
// NATS 做事件总线 (subject = 事件类型)；
// Kafka 做成交流水 firehose (按 mint 分区，保证单市场有序)

package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
)

// Emitter 事件发射器接口
type Emitter interface {
	Emit(event Event)
}

// =============================================================================
// NATS 实现
// =============================================================================

// NATSEmitter 把事件发到 NATS，subject 即事件类型
type NATSEmitter struct {
	conn *nats.Conn
}

func NewNATSEmitter(url string) (*NATSEmitter, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSEmitter{conn: conn}, nil
}

func (e *NATSEmitter) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Events] marshal %s: %v", event.Kind, err)
		return
	}
	if err := e.conn.Publish(string(event.Kind), data); err != nil {
		log.Printf("[Events] publish %s: %v", event.Kind, err)
	}
}

func (e *NATSEmitter) Close() {
	e.conn.Close()
}

// =============================================================================
// Kafka firehose
// =============================================================================

// KafkaEmitter 成交流水生产者
// 同步发送保证落盘顺序；key 用 mint，同一市场进同一分区
type KafkaEmitter struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaEmitter(brokers []string, topic string) (*KafkaEmitter, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaEmitter{producer: producer, topic: topic}, nil
}

func (e *KafkaEmitter) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Events] marshal %s: %v", event.Kind, err)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(event.Mint),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := e.producer.SendMessage(msg); err != nil {
		log.Printf("[Events] kafka send %s: %v", event.Kind, err)
	}
}

func (e *KafkaEmitter) Close() error {
	return e.producer.Close()
}

// =============================================================================
// 组合与空实现
// =============================================================================

// MultiEmitter 扇出到多个发射器
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}

// NoopEmitter 测试用
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// MemoryEmitter 测试用，记录所有事件
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (e *MemoryEmitter) Emit(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Events 事件副本
func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// ByKind 按类型过滤
func (e *MemoryEmitter) ByKind(kind Kind) []Event {
	var out []Event
	for _, ev := range e.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
