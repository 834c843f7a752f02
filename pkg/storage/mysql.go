// 文件: pkg/storage/mysql.go
// MySQL 连接引导
//
// 各包的 MySQL 仓储都吃 *gorm.DB，这里集中建连与建表；
// DSN 需要带 parseTime=True，否则时间字段扫描会失败

package storage

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"moonpad.com/pkg/launch"
	"moonpad.com/pkg/perps"
	"moonpad.com/pkg/platform"
	"moonpad.com/pkg/vault"
)

// Open 建立 MySQL 连接，GORM 日志静默 (业务日志走各引擎自己的 log)
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// Migrate 迁移全部业务表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&vault.Account{},
		&vault.Journal{},
		&platform.Config{},
		&launch.TokenLaunch{},
		&launch.UserPosition{},
		&perps.Market{},
		&perps.MarginAccount{},
		&perps.Position{},
		&perps.InsuranceFund{},
		&perps.OrderBookRecord{},
	)
}
