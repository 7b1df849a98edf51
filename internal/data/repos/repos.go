package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/databanana-backend/internal/platform/logger"
)

type Repos struct {
	Users    UserRepo
	Ledger   LedgerRepo
	Datasets DatasetRepo
	Batches  BatchRepo
	Images   ImageRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Users:    NewUserRepo(db, log),
		Ledger:   NewLedgerRepo(db, log),
		Datasets: NewDatasetRepo(db, log),
		Batches:  NewBatchRepo(db, log),
		Images:   NewImageRepo(db, log),
	}
}
