package store

import (
	"context"
	"strings"

	core "github.com/DomeLiquid/liquidator"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type attempt struct {
	Id        string            `gorm:"primaryKey;size:36"`
	Loan      string            `gorm:"size:42;index:idx_attempts_loan_status"`
	Action    core.Action       `gorm:"not null"`
	Status    string            `gorm:"size:24;index:idx_attempts_loan_status"`
	TxHash    string            `gorm:"size:66"`
	Message   string            `gorm:"type:text"`
	Extra     core.AttemptExtra `gorm:"type:text"`
	CreatedAt int64             `gorm:"autoCreateTime:false"`
	UpdatedAt int64             `gorm:"autoUpdateTime:false"`
}

func (attempt) TableName() string {
	return "liquidation_attempts"
}

func fromCore(a *core.Attempt) *attempt {
	return &attempt{
		Id:        a.Id,
		Loan:      strings.ToLower(a.Loan),
		Action:    a.Action,
		Status:    string(a.Status),
		TxHash:    a.TxHash,
		Message:   a.Message,
		Extra:     a.Extra,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (m *attempt) toCore() *core.Attempt {
	return &core.Attempt{
		Id:        m.Id,
		Loan:      m.Loan,
		Action:    m.Action,
		Status:    core.AttemptStatus(m.Status),
		TxHash:    m.TxHash,
		Message:   m.Message,
		Extra:     m.Extra,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// AttemptStore persists liquidation attempts so a timed out submission can be
// reconciled before the loan is tried again.
type AttemptStore struct {
	db *gorm.DB
}

var _ core.AttemptStore = (*AttemptStore)(nil)

func NewAttemptStore(db *gorm.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, a *core.Attempt) error {
	if err := s.db.WithContext(ctx).Create(fromCore(a)).Error; err != nil {
		return errors.Wrapf(err, "store: create attempt %s", a.Id)
	}
	return nil
}

func (s *AttemptStore) UpdateAttemptStatus(ctx context.Context, id string, status core.AttemptStatus, message string, updatedAt int64) error {
	res := s.db.WithContext(ctx).Model(&attempt{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"message":    message,
		"updated_at": updatedAt,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "store: update attempt %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(core.ErrNotFound, "attempt %s", id)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, id string) (*core.Attempt, error) {
	var m attempt
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(core.ErrNotFound, "attempt %s", id)
		}
		return nil, errors.Wrapf(err, "store: get attempt %s", id)
	}
	return m.toCore(), nil
}

// ListUnresolvedAttempts returns the pending and unknown attempts of loan,
// oldest first.
func (s *AttemptStore) ListUnresolvedAttempts(ctx context.Context, loan string) ([]*core.Attempt, error) {
	var rows []*attempt
	err := s.db.WithContext(ctx).
		Where("loan = ? AND status IN ?", strings.ToLower(loan), []string{
			string(core.AttemptStatusPending),
			string(core.AttemptStatusUnknown),
		}).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "store: list attempts of %s", loan)
	}

	attempts := make([]*core.Attempt, len(rows))
	for i, r := range rows {
		attempts[i] = r.toCore()
	}
	return attempts, nil
}
