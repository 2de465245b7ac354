package rehost

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-blog/internal/identity"
)

// Record is one rehosted image reference, keyed by article and source URL.
type Record struct {
	bun.BaseModel `bun:"table:rehosted_images,alias:ri"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	ArticleID   uuid.UUID `bun:"article_id,type:uuid,notnull"`
	ArticlePath string    `bun:"article_path,notnull"`
	SourceURL   string    `bun:"source_url,notnull"`
	Hash        string    `bun:"hash,notnull"`
	Extension   string    `bun:"extension,notnull"`
	LocalPath   string    `bun:"local_path,notnull"`
	RehostedAt  time.Time `bun:"rehosted_at,notnull"`
}

// Ledger records what the rehoster did so a migration can be audited.
type Ledger interface {
	Record(ctx context.Context, rec Record) error
	ForArticle(ctx context.Context, articlePath string) ([]Record, error)
}

// BunLedger persists records with bun.
type BunLedger struct {
	db  *bun.DB
	now func() time.Time
}

var _ Ledger = (*BunLedger)(nil)

// NewBunLedger wraps db. Call Migrate before use.
func NewBunLedger(db *bun.DB) *BunLedger {
	return &BunLedger{db: db, now: time.Now}
}

// OpenSQLiteLedger opens (or creates) a sqlite ledger at path and ensures
// its table exists.
func OpenSQLiteLedger(ctx context.Context, path string) (*BunLedger, func() error, error) {
	sqldb, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_fk=1&_busy_timeout=5000", path))
	if err != nil {
		return nil, nil, fmt.Errorf("rehost: open ledger %s: %w", path, err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	ledger := NewBunLedger(db)
	if err := ledger.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return ledger, db.Close, nil
}

// Migrate creates the ledger table.
func (l *BunLedger) Migrate(ctx context.Context) error {
	if l.db == nil {
		return errors.New("rehost: ledger requires a database")
	}
	if _, err := l.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("rehost: create ledger table: %w", err)
	}
	return nil
}

// Record inserts rec, or refreshes the stored hash and path when the same
// article/URL pair was rehosted before.
func (l *BunLedger) Record(ctx context.Context, rec Record) error {
	if l.db == nil {
		return errors.New("rehost: ledger requires a database")
	}
	if rec.ArticleID == uuid.Nil {
		rec.ArticleID = identity.ArticleUUID(rec.ArticlePath)
	}
	if rec.ID == uuid.Nil {
		rec.ID = identity.ImageUUID(rec.ArticleID, rec.SourceURL)
	}
	if rec.RehostedAt.IsZero() {
		rec.RehostedAt = l.now().UTC()
	}

	var existing Record
	err := l.db.NewSelect().Model(&existing).Where("id = ?", rec.ID).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := l.db.NewInsert().Model(&rec).Exec(ctx); err != nil {
			return fmt.Errorf("rehost: insert ledger record: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("rehost: load ledger record: %w", err)
	}

	if _, err := l.db.NewUpdate().
		Model(&rec).
		Column("hash", "extension", "local_path", "rehosted_at").
		WherePK().
		Exec(ctx); err != nil {
		return fmt.Errorf("rehost: update ledger record: %w", err)
	}
	return nil
}

// ForArticle lists the records of one article, oldest first.
func (l *BunLedger) ForArticle(ctx context.Context, articlePath string) ([]Record, error) {
	if l.db == nil {
		return nil, errors.New("rehost: ledger requires a database")
	}
	var records []Record
	if err := l.db.NewSelect().
		Model(&records).
		Where("article_path = ?", articlePath).
		Order("rehosted_at ASC", "source_url ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("rehost: list ledger records: %w", err)
	}
	return records, nil
}
