package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotifications(),
		createNotificationHistory(),
		createProviders(),
		createServiceCallbackConfigs(),
		createComplaints(),
		createCallbackJobs(),
	})

	return m.Migrate()
}

func createNotifications() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_provider_reference ON notifications (provider_reference) WHERE provider_reference IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_service_status ON notifications (service_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_archive ON notifications (updated_at) WHERE completed_at IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}

func createNotificationHistory() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notification_history",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Table("notification_history").AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notification_history_provider_reference ON notification_history (provider_reference)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP TABLE IF EXISTS notification_history`).Error
		},
	}
}

func createProviders() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_providers",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProviderModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_providers_type_active ON providers (type, priority) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProviderModel{})
		},
	}
}

func createServiceCallbackConfigs() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_service_callback_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ServiceCallbackConfigModel{}); err != nil {
				return err
			}
			// At most one active callback per (service, purpose).
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_callback_configs_service_purpose ON service_callback_configs (service_id, purpose) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ServiceCallbackConfigModel{})
		},
	}
}

func createComplaints() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_complaints",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ComplaintModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_complaints_notification_feedback ON complaints (notification_id, feedback_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ComplaintModel{})
		},
	}
}

func createCallbackJobs() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_callback_jobs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CallbackJobModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_callback_jobs_retry ON callback_jobs (next_retry_at) WHERE status = 'pending'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CallbackJobModel{})
		},
	}
}
