// 建表工具: 连接 MySQL 并迁移全部业务表
//
// go run ./cmd/migrate -dsn "root:123456@tcp(127.0.0.1:3306)/moonpad?charset=utf8mb4&parseTime=True&loc=Local"

package main

import (
	"flag"
	"log"

	"moonpad.com/pkg/storage"
)

func main() {
	dsn := flag.String("dsn", "root:123456@tcp(127.0.0.1:3306)/moonpad?charset=utf8mb4&parseTime=True&loc=Local", "MySQL DSN")
	flag.Parse()

	db, err := storage.Open(*dsn)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("✅ All tables migrated")
}
