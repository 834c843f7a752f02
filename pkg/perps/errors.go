// 文件: pkg/perps/errors.go
// 合约引擎错误定义 - 扁平枚举，每个可失败点一个命名变体

package perps

import "errors"

// 输入校验
var (
	ErrZeroAmount        = errors.New("amount must be greater than zero")
	ErrExcessiveLeverage = errors.New("leverage exceeds market cap")
	ErrInvalidMarginBps  = errors.New("maintenance margin out of range")
	ErrInvalidSide       = errors.New("invalid position side")
)

// 状态/不变量
var (
	ErrMarketExists           = errors.New("perp market already exists")
	ErrMarketNotFound         = errors.New("perp market not found")
	ErrMarketPaused           = errors.New("perp market is paused")
	ErrPositionNotFound       = errors.New("position not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrPositionTooLarge       = errors.New("position size exceeds market cap")
	ErrOpenInterestCap        = errors.New("open interest cap exceeded")
	ErrInsufficientMargin     = errors.New("collateral does not cover required margin")
	ErrInsufficientCollateral = errors.New("margin account balance too low")
	ErrNotLiquidatable        = errors.New("position margin ratio above maintenance")
	ErrNoOrdersToMatch        = errors.New("no crossing orders to match")
)

// 权限
var (
	ErrUnauthorized = errors.New("caller does not own this record")
)

// 时间/价格门禁
var (
	ErrStaleOracle       = errors.New("index price not set")
	ErrCircuitBreaker    = errors.New("price outside circuit breaker band")
	ErrFundingNotElapsed = errors.New("funding interval not elapsed")
)
