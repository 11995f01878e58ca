package repository

import (
	"fmt"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/models"
	"gorm.io/gorm"
)

// partialIndexes enforce at-most-once terminal ledger records per lead
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uk_action_records_terminal
	   ON campaign_action_records (campaign_id, lead_id, action_type)
	WHERE action_type IN ('CONNECTION_ACCEPTED', 'ENRICHMENT_COMPLETED')`,
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Campaign{},
		&models.CampaignStep{},
		&models.CampaignLead{},
		&models.ActionRecord{},
		&models.ProviderAccount{},
		&models.CreditWallet{},
		&models.CreditTransaction{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
