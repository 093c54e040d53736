package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"tradebot/internal/model"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"

	keyBalance  = "balance"
	keyHoldings = "holdings"
)

// PGOption defines connection options for PostgreSQL.
type PGOption struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	SSLMode    string `json:"sslMode"`
	ConnString string `json:"connString"`
}

// Configured reports whether the options identify a database at all.
func (opt PGOption) Configured() bool {
	return opt.ConnString != "" || opt.Host != "" || opt.Database != ""
}

func (opt PGOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

type tradeRow struct {
	ID           int64   `gorm:"primaryKey"`
	Symbol       string  `gorm:"index"`
	Side         string
	EntryPrice   float64
	ExitPrice    *float64
	Quantity     float64
	PnL          float64 `gorm:"column:pnl"`
	Status       string
	EnteredAt    int64 `gorm:"index"`
	ExitedAt     *int64
	StrategyName string
}

func (tradeRow) TableName() string { return "trades" }

type configRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (configRow) TableName() string { return "configurations" }

// PG is the PostgreSQL-backed Store.
type PG struct {
	db *gorm.DB
}

// OpenPG connects to PostgreSQL and migrates the schema.
func OpenPG(opt PGOption) (*PG, error) {
	db, err := gorm.Open(postgres.Open(opt.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&tradeRow{}, &configRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &PG{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *PG) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadAccount reads the balance/holdings scalars. The second return is
// false when neither key has been saved yet.
func (p *PG) LoadAccount(ctx context.Context) (Account, bool, error) {
	var rows []configRow
	err := p.db.WithContext(ctx).
		Where("key IN ?", []string{keyBalance, keyHoldings}).
		Find(&rows).Error
	if err != nil {
		return Account{}, false, errors.Wrap(err, "load account scalars")
	}
	if len(rows) == 0 {
		return Account{}, false, nil
	}

	var acct Account
	for _, row := range rows {
		v, err := strconv.ParseFloat(row.Value, 64)
		if err != nil {
			return Account{}, false, errors.Wrap(err, "parse scalar").With("key", row.Key)
		}
		switch row.Key {
		case keyBalance:
			acct.Balance = v
		case keyHoldings:
			acct.Holdings = v
		}
	}
	return acct, true, nil
}

// SaveAccount upserts the balance/holdings scalars.
func (p *PG) SaveAccount(ctx context.Context, acct Account) error {
	rows := []configRow{
		{Key: keyBalance, Value: strconv.FormatFloat(acct.Balance, 'f', -1, 64)},
		{Key: keyHoldings, Value: strconv.FormatFloat(acct.Holdings, 'f', -1, 64)},
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&rows).Error
	return errors.Wrap(err, "save account scalars")
}

// SaveTrade appends a trade record.
func (p *PG) SaveTrade(ctx context.Context, trade *model.Trade) error {
	row := toTradeRow(trade)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "save trade")
	}
	trade.ID = row.ID
	return nil
}

// RecentTrades returns up to limit trades, most recent first.
func (p *PG) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	var rows []tradeRow
	err := p.db.WithContext(ctx).
		Order("entered_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query recent trades")
	}
	trades := make([]model.Trade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, fromTradeRow(row))
	}
	return trades, nil
}

// LastTrade returns the most recent trade, nil when the log is empty.
func (p *PG) LastTrade(ctx context.Context) (*model.Trade, error) {
	var row tradeRow
	err := p.db.WithContext(ctx).
		Order("entered_at DESC").
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "query last trade")
	}
	trade := fromTradeRow(row)
	return &trade, nil
}

func toTradeRow(trade *model.Trade) tradeRow {
	row := tradeRow{
		ID:           trade.ID,
		Symbol:       trade.Symbol,
		Side:         string(trade.Side),
		EntryPrice:   trade.EntryPrice,
		ExitPrice:    trade.ExitPrice,
		Quantity:     trade.Quantity,
		PnL:          trade.PnL,
		Status:       trade.Status,
		EnteredAt:    trade.EnteredAt.UnixMilli(),
		StrategyName: trade.StrategyName,
	}
	if trade.ExitedAt != nil {
		ms := trade.ExitedAt.UnixMilli()
		row.ExitedAt = &ms
	}
	return row
}

func fromTradeRow(row tradeRow) model.Trade {
	trade := model.Trade{
		ID:           row.ID,
		Symbol:       row.Symbol,
		Side:         model.Side(row.Side),
		EntryPrice:   row.EntryPrice,
		ExitPrice:    row.ExitPrice,
		Quantity:     row.Quantity,
		PnL:          row.PnL,
		Status:       row.Status,
		EnteredAt:    msToTime(row.EnteredAt),
		StrategyName: row.StrategyName,
	}
	if row.ExitedAt != nil {
		t := msToTime(*row.ExitedAt)
		trade.ExitedAt = &t
	}
	return trade
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
