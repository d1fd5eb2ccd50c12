package database

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func InitTestDB() {
	var err error
	DB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}

	// 单连接串行化写入，并发测试验证的是条件更新语义而不是驱动锁
	sqlDB, err := DB.DB()
	if err != nil {
		panic("failed to get test database handle")
	}
	sqlDB.SetMaxOpenConns(1)

	// 自动迁移测试数据库
	err = DB.AutoMigrate(allModels()...)
	if err != nil {
		panic("failed to migrate test database")
	}
}

func CleanTestDB() {
	sqlDB, err := DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
