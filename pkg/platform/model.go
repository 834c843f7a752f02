// 文件: pkg/platform/model.go
// 平台全局配置 - 数据模型
//
// 单例记录: 整个平台只有一条，地址 derive("platform")
// 权限方可以暂停平台、调整费率；每次发射/成交都递增计数器

package platform

import (
	"moonpad.com/pkg/keys"
)

// =============================================================================
// 常量
// =============================================================================

const (
	// MaxPlatformFeeBps 平台费率上限 (10%)
	MaxPlatformFeeBps = 1000

	// BpsDenominator 万分比分母
	BpsDenominator = 10_000
)

// =============================================================================
// Config - 平台配置 (单例)
// =============================================================================

// Config 平台全局配置
type Config struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// Address 固定为 derive("platform")
	Address   string `gorm:"column:address;type:varchar(64);uniqueIndex"`
	Authority string `gorm:"column:authority;type:varchar(64)"` // 权限方地址

	PlatformFeeBps     uint16 `gorm:"column:platform_fee_bps"` // ≤ 1000
	MigrationThreshold uint64 `gorm:"column:migration_threshold"`

	// ===== 统计计数器 (饱和递增，仅展示用) =====
	TotalLaunches uint64 `gorm:"column:total_launches"`
	TotalVolume   uint64 `gorm:"column:total_volume"`

	Paused bool `gorm:"column:paused"`

	CreatedAt int64 `gorm:"column:created_at"`
	UpdatedAt int64 `gorm:"column:updated_at"`
}

func (Config) TableName() string {
	return "platform_configs"
}

// ConfigAddress 单例记录地址
func ConfigAddress() keys.Address {
	return keys.Derive(keys.TagPlatform)
}

// VaultAddress 平台费金库地址
func VaultAddress() keys.Address {
	return keys.Derive(keys.TagPlatformVault)
}
