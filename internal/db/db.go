package db

import (
	"fmt"
	"time"

	"prep/internal/interview"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return gdb, nil
}

func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&interview.Interview{},
		&interview.Result{},
	); err != nil {
		return err
	}

	stmts := []string{
		// scheduler sweep: non-done interviews by date
		`create index if not exists idx_interviews_due on interviews(scheduled_date) where done = false;`,
		// latest result per owner
		`create index if not exists idx_results_owner_updated on interview_results(owner_id, updated_at desc);`,
		// promotion audit lookups
		`create index if not exists idx_results_previous_ids on interview_results using gin (previous_call_ids);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
