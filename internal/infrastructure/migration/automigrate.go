package migration

import (
	"github.com/iscoin/purchase/internal/infrastructure/persistence/models"
)

func AutoMigrateModels() []interface{} {
	return models.All()
}
