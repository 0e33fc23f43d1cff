package repositories

import (
	"errors"
	"time"

	"DerivTradeBot/internal/models"

	"gorm.io/gorm"
)

type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new instance of TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create adds a new TradeRecord to the database
func (r *TradeRepository) Create(record *models.TradeRecord) error {
	if record == nil {
		return errors.New("trade record cannot be nil")
	}
	return r.db.Create(record).Error
}

// FindByID retrieves a TradeRecord by its ID
func (r *TradeRepository) FindByID(id uint) (*models.TradeRecord, error) {
	if id == 0 {
		return nil, errors.New("invalid id")
	}
	var record models.TradeRecord
	err := r.db.First(&record, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &record, err
}

// FindByPair retrieves all TradeRecords for a trading pair
func (r *TradeRepository) FindByPair(pair string) ([]models.TradeRecord, error) {
	if pair == "" {
		return nil, errors.New("invalid pair")
	}
	var records []models.TradeRecord
	err := r.db.Where("pair = ?", pair).Order("time ASC").Find(&records).Error
	return records, err
}

// FindExitsSince retrieves all exit records from the given time onward
func (r *TradeRepository) FindExitsSince(since time.Time) ([]models.TradeRecord, error) {
	var records []models.TradeRecord
	err := r.db.Where("type = ? AND time >= ?", models.TradeTypeExit, since).
		Order("time ASC").
		Find(&records).Error
	return records, err
}

// GetTotalPnL sums realized PnL over exit records in a time range
func (r *TradeRepository) GetTotalPnL(start, end time.Time) (float64, error) {
	var totalPnL float64
	err := r.db.Model(&models.TradeRecord{}).
		Where("type = ? AND time BETWEEN ? AND ?", models.TradeTypeExit, start, end).
		Select("COALESCE(SUM(pnl), 0) as total_pnl").
		Scan(&totalPnL).Error
	return totalPnL, err
}
