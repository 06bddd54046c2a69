package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STORAGE - Scan history, flagged opportunities and sent alerts
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

type ScanRun struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	StartedAt    time.Time `gorm:"index"`
	DurationMs   int64
	Pairs        int
	Quotes       int
	QuoteErrors  int
	Evaluated    int
	Cycles       int
	Flagged      int
	NativeUSD    decimal.Decimal `gorm:"type:decimal(20,6)"`
	GasPriceGwei decimal.Decimal `gorm:"type:decimal(20,9)"`
	CreatedAt    time.Time
}

type OpportunityRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ScanID         uint   `gorm:"index"`
	OpportunityID  string `gorm:"index"`
	Kind           string `gorm:"index"`
	Pair           string `gorm:"index"` // pair, or cycle path @ venue
	BuySource      string
	SellSource     string
	BuyPrice       decimal.Decimal `gorm:"type:decimal(30,12)"`
	SellPrice      decimal.Decimal `gorm:"type:decimal(30,12)"`
	SpreadPct      decimal.Decimal `gorm:"type:decimal(10,6)"`
	Sources        int
	FlashAmountUSD decimal.Decimal `gorm:"type:decimal(20,2)"`
	GrossProfit    decimal.Decimal `gorm:"type:decimal(20,6)"`
	FlashFee       decimal.Decimal `gorm:"type:decimal(20,6)"`
	GasCost        decimal.Decimal `gorm:"type:decimal(20,6)"`
	SlippageCost   decimal.Decimal `gorm:"type:decimal(20,6)"`
	NetProfit      decimal.Decimal `gorm:"type:decimal(20,6)"`
	ROIPct         decimal.Decimal `gorm:"type:decimal(10,6)"`
	DetectedAt     time.Time
	CreatedAt      time.Time
}

type QuoteRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ScanID    uint   `gorm:"index"`
	Pair      string `gorm:"index"`
	Source    string
	DEX       string
	FeeTier   uint32
	AmountIn  string // raw units, may exceed 64 bits
	AmountOut string
	Price     decimal.Decimal `gorm:"type:decimal(30,12)"`
	FetchedAt time.Time
}

type AlertRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	ScanID        uint   `gorm:"index"`
	OpportunityID string `gorm:"index"`
	Pair          string `gorm:"index"`
	MessageID     int
	SpreadPct     decimal.Decimal `gorm:"type:decimal(10,6)"`
	NetProfit     decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt     time.Time
}

// Totals aggregates the whole history
type Totals struct {
	Scans         int64
	Opportunities int64
	Alerts        int64
	BestNetProfit decimal.Decimal
	BestPair      string
}

func models() []interface{} {
	return []interface{}{&ScanRun{}, &OpportunityRecord{}, &QuoteRecord{}, &AlertRecord{}}
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(models()...); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Scan operations

// SaveScan stores a scan with its ranked opportunities and every quote, atomically
func (d *Database) SaveScan(summary *types.ScanSummary, quotes []types.Quote) (uint, error) {
	run := ScanRun{
		StartedAt:    summary.StartedAt,
		DurationMs:   summary.Duration.Milliseconds(),
		Pairs:        summary.Pairs,
		Quotes:       summary.Quotes,
		QuoteErrors:  summary.QuoteErrors,
		Evaluated:    summary.Evaluated,
		Cycles:       summary.Cycles,
		Flagged:      len(summary.Top),
		NativeUSD:    summary.Costs.NativeUSD,
		GasPriceGwei: summary.Costs.GasPriceGwei,
	}

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}

		if len(summary.Top) > 0 {
			records := make([]OpportunityRecord, 0, len(summary.Top))
			for _, opp := range summary.Top {
				records = append(records, opportunityRecord(run.ID, opp))
			}
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}

		if len(quotes) > 0 {
			records := make([]QuoteRecord, 0, len(quotes))
			for _, q := range quotes {
				records = append(records, quoteRecord(run.ID, q))
			}
			if err := tx.CreateInBatches(&records, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

// GetRecentScans returns the newest scans first
func (d *Database) GetRecentScans(limit int) ([]ScanRun, error) {
	var runs []ScanRun
	err := d.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// Opportunity operations

func (d *Database) RecentOpportunities(limit int) ([]OpportunityRecord, error) {
	var opps []OpportunityRecord
	err := d.db.Order("detected_at DESC").Limit(limit).Find(&opps).Error
	return opps, err
}

// GetQuotesForScan returns every quote fetched by one scan
func (d *Database) GetQuotesForScan(scanID uint) ([]QuoteRecord, error) {
	var quotes []QuoteRecord
	err := d.db.Where("scan_id = ?", scanID).Order("pair, source").Find(&quotes).Error
	return quotes, err
}

// Alert operations

func (d *Database) SaveAlert(opp *types.Opportunity, scanID uint, messageID int) error {
	return d.db.Create(&AlertRecord{
		ScanID:        scanID,
		OpportunityID: opp.ID,
		Pair:          opp.Key(),
		MessageID:     messageID,
		SpreadPct:     opp.SpreadPct,
		NetProfit:     opp.Profit.NetProfit,
	}).Error
}

// AlertsSince returns alerts created at or after since, oldest first
func (d *Database) AlertsSince(since time.Time) ([]AlertRecord, error) {
	var alerts []AlertRecord
	err := d.db.Where("created_at >= ?", since).Order("created_at ASC").Find(&alerts).Error
	return alerts, err
}

// Maintenance

// TableCounts returns the row count of every table
func (d *Database) TableCounts() (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, m := range models() {
		stmt := &gorm.Statement{DB: d.db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		var n int64
		if err := d.db.Model(m).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[stmt.Schema.Table] = n
	}
	return counts, nil
}

// Reset drops and recreates every table
func (d *Database) Reset() error {
	if err := d.db.Migrator().DropTable(models()...); err != nil {
		return err
	}
	return d.db.AutoMigrate(models()...)
}

// Stats operations

func (d *Database) Totals() (Totals, error) {
	var t Totals

	if err := d.db.Model(&ScanRun{}).Count(&t.Scans).Error; err != nil {
		return t, err
	}
	if err := d.db.Model(&OpportunityRecord{}).Count(&t.Opportunities).Error; err != nil {
		return t, err
	}
	if err := d.db.Model(&AlertRecord{}).Count(&t.Alerts).Error; err != nil {
		return t, err
	}

	var best OpportunityRecord
	err := d.db.Order("net_profit DESC").First(&best).Error
	if err == nil {
		t.BestNetProfit = best.NetProfit
		t.BestPair = best.Pair
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return t, err
	}

	return t, nil
}

func opportunityRecord(scanID uint, opp *types.Opportunity) OpportunityRecord {
	p := opp.Profit
	return OpportunityRecord{
		ScanID:         scanID,
		OpportunityID:  opp.ID,
		Kind:           string(opp.Kind),
		Pair:           opp.Key(),
		BuySource:      opp.Buy.Source,
		SellSource:     opp.Sell.Source,
		BuyPrice:       opp.Buy.Price,
		SellPrice:      opp.Sell.Price,
		SpreadPct:      opp.SpreadPct,
		Sources:        opp.Sources,
		FlashAmountUSD: p.FlashAmountUSD,
		GrossProfit:    p.GrossProfit,
		FlashFee:       p.FlashFee,
		GasCost:        p.GasCost,
		SlippageCost:   p.SlippageCost,
		NetProfit:      p.NetProfit,
		ROIPct:         p.ROIPct,
		DetectedAt:     opp.DetectedAt,
	}
}

func quoteRecord(scanID uint, q types.Quote) QuoteRecord {
	rec := QuoteRecord{
		ScanID:    scanID,
		Pair:      q.Pair.String(),
		Source:    q.Source,
		DEX:       q.DEX,
		FeeTier:   uint32(q.FeeTier),
		Price:     q.Price,
		FetchedAt: q.FetchedAt,
	}
	if q.AmountIn != nil {
		rec.AmountIn = q.AmountIn.String()
	}
	if q.AmountOut != nil {
		rec.AmountOut = q.AmountOut.String()
	}
	return rec
}
