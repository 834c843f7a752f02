// 文件: pkg/launch/errors.go
// 代币发射模块错误定义 (扁平枚举，指令级原子回滚)

package launch

import "errors"

// 输入校验类: 在任何状态变更/转账之前检查
var (
	ErrZeroAmount    = errors.New("amount must be greater than zero")
	ErrNameTooLong   = errors.New("name exceeds 32 bytes")
	ErrSymbolTooLong = errors.New("symbol exceeds 10 bytes")
	ErrURITooLong    = errors.New("uri exceeds 200 bytes")
	ErrFeeTooHigh    = errors.New("creator fee exceeds 500 bps")
)

// 状态/不变量类: 计算中途、提交之前检查
var (
	ErrPlatformPaused         = errors.New("platform is paused")
	ErrLaunchExists           = errors.New("token launch already exists")
	ErrLaunchNotFound         = errors.New("token launch not found")
	ErrAlreadyMigrated        = errors.New("token already migrated")
	ErrInsufficientOutput     = errors.New("computed token output is zero")
	ErrInsufficientTokensSold = errors.New("sell amount exceeds tokens sold")
	ErrInsufficientReserve    = errors.New("sell proceeds exceed curve reserve")
	ErrInsufficientStake      = errors.New("unstake amount exceeds total staked")
	ErrVaultBelowRentExempt   = errors.New("reserve vault would fall below rent-exempt minimum")
)
