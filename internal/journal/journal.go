package journal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/compose-network/voting-bridge/internal/logger"
	"github.com/compose-network/voting-bridge/internal/voting"
)

// EventRecord is one factory event as stored for indexers.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"index;size:32"`
	Proxy      string `gorm:"index;size:42"`
	Account    string `gorm:"size:42"`
	Governor   string `gorm:"size:42"`
	Underlying string `gorm:"size:42"`
	Synthetic  string `gorm:"size:42"`
	ProposalID uint64 `gorm:"index"`
	AuxData    uint64
	VoteChoice string `gorm:"size:8"`
	Amount     string `gorm:"size:78"`
	CreatedAt  time.Time
}

func (EventRecord) TableName() string {
	return "voting_event"
}

// Filter narrows Events. Zero fields match everything.
type Filter struct {
	Kind       voting.EventKind
	Proxy      string
	ProposalID *uint64
}

// Journal persists factory events to SQLite. It implements voting.EventSink.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens the journal at path, or an in-memory journal when path is empty.
func Open(path string) (*Journal, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read journal dir: %w", err)
			}
			if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create journal dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if path == "" {
		// every connection to :memory: is a separate database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db, logger: logger.Named("journal").With("path", path)}, nil
}

func (j *Journal) HandleEvent(ctx context.Context, event voting.Event) error {
	record := toRecord(event)
	if err := j.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to journal %s: %w", event.Kind(), err)
	}
	j.logger.With("kind", record.Kind).With("id", record.ID).Debug("event journaled")
	return nil
}

// Events returns the journaled events matching f in insertion order.
func (j *Journal) Events(ctx context.Context, f Filter) ([]EventRecord, error) {
	query := j.db.WithContext(ctx).Model(&EventRecord{})
	if f.Kind != "" {
		query = query.Where("kind = ?", string(f.Kind))
	}
	if f.Proxy != "" {
		query = query.Where("proxy = ?", f.Proxy)
	}
	if f.ProposalID != nil {
		query = query.Where("proposal_id = ?", *f.ProposalID)
	}

	var records []EventRecord
	if err := query.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return records, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

func toRecord(event voting.Event) EventRecord {
	record := EventRecord{Kind: string(event.Kind())}
	switch e := event.(type) {
	case voting.VoterCreated:
		record.AuxData = e.AuxData
		record.Governor = e.Governor.Hex()
		record.ProposalID = e.ProposalID
		record.Proxy = e.Proxy.Hex()
		record.VoteChoice = e.VoteChoice.String()
	case voting.VoterTokenCreated:
		record.Underlying = e.Underlying.Hex()
		record.Synthetic = e.Synthetic.Hex()
	case voting.VoteAllocated:
		record.Proxy = e.Proxy.Hex()
		record.Account = e.Account.Hex()
		record.Amount = e.Amount.Dec()
	case voting.VotesRedeemed:
		record.Proxy = e.Proxy.Hex()
		record.Account = e.Account.Hex()
		record.Amount = e.Amount.Dec()
	case voting.VoteCast:
		record.Governor = e.Governor.Hex()
		record.ProposalID = e.ProposalID
		record.Proxy = e.Proxy.Hex()
		record.VoteChoice = e.VoteChoice.String()
	case voting.ProxyReleased:
		record.Proxy = e.Proxy.Hex()
		record.ProposalID = e.ProposalID
	}
	return record
}
