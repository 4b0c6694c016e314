package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/shiftguard/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			indexes := []string{
				// Attempt numbers are gapless per notification+channel pair;
				// the unique index backs that invariant at the store level.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_pair_number ON delivery_attempts (notification_id, channel, attempt_number)`,
				`CREATE INDEX IF NOT EXISTS idx_attempts_attempted_at ON delivery_attempts (attempted_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}
