package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"quizsync/internal/domain"
)

// ErrBinNotFound is returned when the requested bin row does not exist.
var ErrBinNotFound = errors.New("bin not found")

type resultBin struct {
	bun.BaseModel `bun:"table:result_bins"`

	ID        string             `bun:"id,pk"`
	Data      domain.BinDocument `bun:"data,type:jsonb"`
	UpdatedAt time.Time          `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// BinStore keeps result documents in Postgres, one row per bin. It satisfies
// app.RemoteStore for deployments without a hosted blob service.
type BinStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewBinStore(db *bun.DB) *BinStore {
	return &BinStore{db: db, now: time.Now}
}

func (s *BinStore) Create(ctx context.Context, doc domain.BinDocument) (string, error) {
	bin := &resultBin{ID: uuid.NewString(), Data: doc, UpdatedAt: s.now()}
	if _, err := s.db.NewInsert().Model(bin).Exec(ctx); err != nil {
		return "", fmt.Errorf("insert bin: %w", err)
	}
	return bin.ID, nil
}

func (s *BinStore) Read(ctx context.Context, binID string) (domain.BinDocument, error) {
	bin := new(resultBin)
	err := s.db.NewSelect().Model(bin).Where("id = ?", binID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BinDocument{}, fmt.Errorf("%w: %s", ErrBinNotFound, binID)
	}
	if err != nil {
		return domain.BinDocument{}, fmt.Errorf("select bin: %w", err)
	}
	return bin.Data, nil
}

func (s *BinStore) Replace(ctx context.Context, binID string, doc domain.BinDocument) error {
	bin := &resultBin{ID: binID, Data: doc, UpdatedAt: s.now()}
	res, err := s.db.NewUpdate().Model(bin).Column("data", "updated_at").WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update bin: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrBinNotFound, binID)
	}
	return nil
}
