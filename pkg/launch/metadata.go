// 文件: pkg/launch/metadata.go
// 元数据注册 - 外部服务调用边界
//
// 链上是对外部元数据程序的 CPI (指令索引 33)；
// 离链形态收敛成一个接口：引擎只需要能为 mint 登记 (name, symbol, uri)。
// 负载沿用 borsh 风格的 u32 长度前缀编码，卖方费率固定为 0、可变标记为 true

package launch

import (
	"encoding/binary"
	"fmt"

	"github.com/nats-io/nats.go"

	"moonpad.com/pkg/keys"
)

// metadataInstructionIndex 被消费协议中 create metadata 的指令索引
const metadataInstructionIndex = 33

// Registrar 元数据注册接口
type Registrar interface {
	Register(mint, name, symbol, uri string) error
}

// MetadataAddress 元数据记录地址
func MetadataAddress(mint string) keys.Address {
	return keys.Derive(keys.TagMetadata, []byte(mint))
}

// EncodeMetadataPayload 构造外部程序的指令负载
//
// 布局: u8 指令索引 | 三个 u32 长度前缀字符串 | u16 卖方费率=0 |
// 无 creators/collection/uses (三个 0x00) | is_mutable=1
func EncodeMetadataPayload(name, symbol, uri string) []byte {
	buf := make([]byte, 0, 1+4*3+len(name)+len(symbol)+len(uri)+6)
	buf = append(buf, metadataInstructionIndex)
	for _, s := range []string{name, symbol, uri} {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}
	buf = append(buf, 0, 0)    // seller_fee_basis_points = 0
	buf = append(buf, 0, 0, 0) // creators/collection/uses = None
	buf = append(buf, 1)       // is_mutable = true
	return buf
}

// =============================================================================
// NATS 实现
// =============================================================================

// NATSRegistrar 把注册请求发给外部元数据服务
type NATSRegistrar struct {
	conn    *nats.Conn
	subject string
}

func NewNATSRegistrar(url, subject string) (*NATSRegistrar, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if subject == "" {
		subject = "metadata.create"
	}
	return &NATSRegistrar{conn: conn, subject: subject}, nil
}

func (r *NATSRegistrar) Register(mint, name, symbol, uri string) error {
	payload := EncodeMetadataPayload(name, symbol, uri)
	// 头部带 mint 与派生的元数据地址，便于服务端定位记录
	msg := nats.NewMsg(r.subject)
	msg.Header.Set("mint", mint)
	msg.Header.Set("metadata", MetadataAddress(mint).String())
	msg.Data = payload
	return r.conn.PublishMsg(msg)
}

func (r *NATSRegistrar) Close() {
	r.conn.Close()
}

// NoopRegistrar 测试用
type NoopRegistrar struct{}

func (NoopRegistrar) Register(string, string, string, string) error { return nil }
