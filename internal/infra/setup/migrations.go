package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// MigrateDB handles all database migrations using the provided GORM DB instance.
// rundowns 表用自定义 SQL 创建：计时器子状态列必须是可空的，
// 并且在老库上可能已经部分存在（见 ensureTimerColumns）。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateRundownsTable(db); err != nil {
		return fmt.Errorf("failed to migrate rundowns table: %w", err)
	}

	// 其余模型交给 AutoMigrate
	err := db.AutoMigrate(
		&domain.Folder{},
		&domain.Item{},
		&domain.RundownMember{},
		&domain.UsageLog{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateRundownsTable 处理 rundowns 表的创建或升级
func migrateRundownsTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'rundowns'").Count(&count)

	if count == 0 {
		return createRundownsTable(db)
	}
	return ensureTimerColumns(db)
}

// createRundownsTable 创建 rundowns 表
func createRundownsTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE rundowns (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		company_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(120) NOT NULL,
		type VARCHAR(50),
		status VARCHAR(30),
		duration VARCHAR(20),
		created VARCHAR(50),
		last_modified VARCHAR(50),
		team_members INT,
		created_at DATETIME(3),
		updated_at DATETIME(3),
		timer_started_at VARCHAR(50) NULL,
		timer_elapsed_base INT NULL,
		is_timer_running TINYINT(1) NULL,
		current_item_index_json TEXT NULL,
		INDEX idx_company_id (company_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create rundowns table: %v", err)
		return fmt.Errorf("failed to create rundowns table: %w", err)
	}
	logrus.Info("Rundowns table created successfully")
	return nil
}

// ensureTimerColumns 为已存在的 rundowns 表补齐可选的计时器列。
// 列已存在时的报错只记录 Warn：读取路径本来就允许这些列缺失。
func ensureTimerColumns(db *gorm.DB) error {
	alters := []string{
		"ALTER TABLE rundowns ADD COLUMN timer_started_at VARCHAR(50) NULL",
		"ALTER TABLE rundowns ADD COLUMN timer_elapsed_base INT NULL",
		"ALTER TABLE rundowns ADD COLUMN is_timer_running TINYINT(1) NULL",
		"ALTER TABLE rundowns ADD COLUMN current_item_index_json TEXT NULL",
	}
	for _, stmt := range alters {
		if err := db.Exec(stmt).Error; err != nil {
			logrus.Warnf("Could not add timer column (may already exist): %v", err)
		}
	}

	if err := db.AutoMigrate(&domain.Rundown{}); err != nil {
		logrus.Errorf("Failed to auto-migrate Rundown table: %v", err)
		return fmt.Errorf("failed to migrate rundown columns: %w", err)
	}

	logrus.Info("Rundowns table schema checked/updated successfully")
	return nil
}
