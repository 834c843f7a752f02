// 文件: pkg/keys/address.go
// 确定性记录寻址
//
// 链上程序用 PDA (tag + seeds) 定位每条记录；
// 离链引擎里退化为"确定性复合键"：sha256(长度前缀的 tag + seeds)
// 同样的 tag/seeds 永远得到同一个地址，地址即存储主键

package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// =============================================================================
// 固定 tag
// =============================================================================

const (
	TagPlatform      = "platform"
	TagPlatformVault = "platform-vault"
	TagLaunch        = "launch"
	TagLaunchVault   = "launch-vault"
	TagStakeVault    = "stake-vault"
	TagUserPosition  = "user-position"
	TagWallet        = "wallet"
	TagMetadata      = "metadata"
	TagTokenAccount  = "token-account"
	TagPerpMarket    = "perp-market"
	TagPerpVault     = "perp-vault"
	TagOrderBook     = "order-book"
	TagMargin        = "margin"
	TagInsuranceFund = "insurance-fund"
)

// =============================================================================
// Address
// =============================================================================

// Address 32 字节记录地址
type Address [32]byte

var Zero Address

// String 十六进制形式 (日志/存储主键)
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero 是否零地址
func (a Address) IsZero() bool {
	return a == Zero
}

// Bytes 返回副本切片，可直接作为下一级派生的 seed
func (a Address) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, a[:])
	return b
}

// FromString 从十六进制恢复地址
func FromString(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// =============================================================================
// 派生
// =============================================================================

// Derive 派生地址: sha256(len(tag) || tag || len(seed0) || seed0 || ...)
//
// 长度前缀防止 seed 拼接歧义 ("ab"+"c" vs "a"+"bc")
func Derive(tag string, seeds ...[]byte) Address {
	h := sha256.New()
	writeChunk(h.Write, []byte(tag))
	for _, s := range seeds {
		writeChunk(h.Write, s)
	}
	var a Address
	h.Sum(a[:0])
	return a
}

func writeChunk(write func([]byte) (int, error), chunk []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	write(lenBuf[:])
	write(chunk)
}
