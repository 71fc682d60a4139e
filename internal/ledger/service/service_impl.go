package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Charge(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, domain.ErrInvalidUser
	}
	if amount <= 0 {
		return false, domain.ErrInvalidAmount
	}

	var reference *string
	if r := strings.TrimSpace(externalReference); r != "" {
		reference = &r
	}

	now := s.clock.Now()
	charged := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAccount(tx, userID, now); err != nil {
			return err
		}

		// The balance guard inside a single UPDATE is what linearizes
		// concurrent charges: only one of two racing debits can satisfy
		// balance >= amount for the last credits.
		res := tx.Model(&domain.Account{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance - ?", amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // insufficient funds, no side effects
		}

		entry := domain.Entry{
			ID:                s.genID.Generate(),
			UserID:            userID,
			Kind:              domain.KindCharge,
			Amount:            -amount,
			ExternalReference: reference,
			Status:            domain.StatusCompleted,
			Metadata:          datatypes.JSONMap(metadata),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			// rolls back the balance decrement with it
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateReference
			}
			return err
		}
		charged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return charged, nil
}

func (s *Service) Allocate(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) error {
	return s.credit(ctx, userID, amount, domain.KindAllocation, externalReference, metadata)
}

func (s *Service) Refund(ctx context.Context, userID string, amount int64, reference string, metadata map[string]any) error {
	return s.credit(ctx, userID, amount, domain.KindRefund, reference, metadata)
}

// credit increments the balance and records the entry in one transaction,
// exactly once per external reference.
func (s *Service) credit(ctx context.Context, userID string, amount int64, kind domain.EntryKind, reference string, metadata map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUser
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.ErrInvalidReference
	}

	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureAccount(tx, userID, now); err != nil {
			return err
		}

		// The lookup is scoped to the caller's account: a reference that
		// exists under another user must never credit this one.
		var existing domain.Entry
		err := tx.Where("external_reference = ? AND user_id = ?", reference, userID).First(&existing).Error
		switch {
		case err == nil:
			switch existing.Status {
			case domain.StatusCompleted:
				return domain.ErrDuplicateReference
			case domain.StatusFailed:
				return domain.ErrReferenceFailed
			}
			// pending -> completed transition carries the confirmed amount
			res := tx.Model(&domain.Entry{}).
				Where("id = ? AND status = ?", existing.ID, domain.StatusPending).
				Updates(map[string]any{
					"status":     domain.StatusCompleted,
					"amount":     amount,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// another handler completed it between our read and write
				return domain.ErrDuplicateReference
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry := domain.Entry{
				ID:                s.genID.Generate(),
				UserID:            userID,
				Kind:              kind,
				Amount:            amount,
				ExternalReference: &reference,
				Status:            domain.StatusCompleted,
				Metadata:          datatypes.JSONMap(metadata),
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					// either our own entry raced in, or the reference
					// belongs to someone else entirely
					var owner domain.Entry
					if lookupErr := tx.Where("external_reference = ?", reference).First(&owner).Error; lookupErr == nil && owner.UserID != userID {
						return domain.ErrReferenceConflict
					}
					return domain.ErrDuplicateReference
				}
				return err
			}
		default:
			return err
		}

		return tx.Model(&domain.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"balance":    gorm.Expr("balance + ?", amount),
				"updated_at": now,
			}).Error
	})
	if errors.Is(err, domain.ErrDuplicateReference) {
		s.log.Info("duplicate credit absorbed",
			zap.String("user_id", userID),
			zap.String("reference", reference),
			zap.String("kind", string(kind)),
		)
	}
	if errors.Is(err, domain.ErrReferenceConflict) {
		s.log.Warn("credit rejected, reference owned by another account",
			zap.String("user_id", userID),
			zap.String("reference", reference),
			zap.String("kind", string(kind)),
		)
	}
	return err
}

func (s *Service) FindByReference(ctx context.Context, externalReference string) (*domain.Entry, error) {
	reference := strings.TrimSpace(externalReference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}

	var entry domain.Entry
	err := s.db.WithContext(ctx).First(&entry, "external_reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) RecordPending(ctx context.Context, userID string, amount int64, externalReference string, metadata map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUser
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	reference := strings.TrimSpace(externalReference)
	if reference == "" {
		return domain.ErrInvalidReference
	}

	now := s.clock.Now()
	entry := domain.Entry{
		ID:                s.genID.Generate(),
		UserID:            userID,
		Kind:              domain.KindAllocation,
		Amount:            amount,
		ExternalReference: &reference,
		Status:            domain.StatusPending,
		Metadata:          datatypes.JSONMap(metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (s *Service) MarkFailed(ctx context.Context, externalReference string) error {
	reference := strings.TrimSpace(externalReference)
	if reference == "" {
		return domain.ErrInvalidReference
	}

	res := s.db.WithContext(ctx).Model(&domain.Entry{}).
		Where("external_reference = ? AND status = ?", reference, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.ErrInvalidUser
	}

	var account domain.Account
	err := s.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil // accounts are created lazily
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) Entries(ctx context.Context, req domain.ListEntriesRequest) (domain.ListEntriesResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ListEntriesResponse{}, domain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	query := s.db.WithContext(ctx).Model(&domain.Entry{}).Where("user_id = ?", req.UserID)
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListEntriesResponse{}, domain.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.ListEntriesResponse{}, domain.ErrInvalidPageToken
		}
		query = query.Where("id < ?", id)
	}

	var entries []*domain.Entry
	if err := query.Order("id DESC").Limit(pageSize + 1).Find(&entries).Error; err != nil {
		return domain.ListEntriesResponse{}, err
	}

	entries, pageInfo := pagination.BuildCursorPageInfo(entries, pageSize, func(e *domain.Entry) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(int64(e.ID), 10)})
		return token
	})

	return domain.ListEntriesResponse{
		PageInfo: *pageInfo,
		Entries:  entries,
	}, nil
}

func (s *Service) PendingAllocations(ctx context.Context, olderThan, notBefore time.Time, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []*domain.Entry
	err := s.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND created_at <= ? AND created_at >= ?",
			domain.KindAllocation, domain.StatusPending, olderThan, notBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ensureAccount creates the account row with a zero balance if it does not
// exist yet, inside the caller's transaction.
func (s *Service) ensureAccount(tx *gorm.DB, userID string, now time.Time) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.Account{UserID: userID, Balance: 0, UpdatedAt: now}).Error
}
