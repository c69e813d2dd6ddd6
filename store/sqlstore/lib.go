package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/highfives-app/highfives/store"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var _ store.Store = (*SQLBackend)(nil)

var nopLogger = zerolog.Nop()

// SQLBackend stores acknowledgments in a relational database through gorm.
// DSNs starting with postgres:// or postgresql:// go to Postgres, anything
// else is treated as a SQLite file (or memory) DSN.
type SQLBackend struct {
	DSN    string
	DB     *gorm.DB
	Logger *zerolog.Logger
}

type acknowledgmentRow struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)"`
	Recipient         string    `gorm:"index;not null"`
	Reason            string    `gorm:"not null"`
	Sender            string    `gorm:"not null;default:''"`
	CreatedAt         time.Time `gorm:"index;not null"`
	NostrEventID      string    `gorm:"not null;default:''"`
	ProfileName       string    `gorm:"not null;default:''"`
	SenderProfileName string    `gorm:"not null;default:''"`
	PaymentPayload    string    `gorm:"not null;default:''"`
}

func (acknowledgmentRow) TableName() string { return "acknowledgments" }

func (b *SQLBackend) Init() error {
	var dialector gorm.Dialector
	if strings.HasPrefix(b.DSN, "postgres://") || strings.HasPrefix(b.DSN, "postgresql://") {
		dialector = postgres.Open(b.DSN)
	} else {
		dialector = sqlite.Open(withBusyTimeout(b.DSN))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&acknowledgmentRow{}); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	b.DB = db
	return nil
}

func (b *SQLBackend) Close() {
	if b.DB == nil {
		return
	}
	if sqlDB, err := b.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func (b *SQLBackend) logger() *zerolog.Logger {
	if b.Logger == nil {
		return &nopLogger
	}
	return b.Logger
}

// withBusyTimeout makes sqlite wait for locks instead of failing right away.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}
