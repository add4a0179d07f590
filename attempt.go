package core

import (
	"context"
	"database/sql/driver"
	"encoding/json"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	AttemptStore interface {
		CreateAttempt(ctx context.Context, attempt *Attempt) error
		UpdateAttemptStatus(ctx context.Context, id string, status AttemptStatus, message string, updatedAt int64) error
		GetAttempt(ctx context.Context, id string) (*Attempt, error)
		ListUnresolvedAttempts(ctx context.Context, loan string) ([]*Attempt, error)
	}

	Attempt struct {
		Id      string        `json:"id"`
		Loan    string        `json:"loan"`
		Action  Action        `json:"action"`
		Status  AttemptStatus `json:"status"`
		TxHash  string        `json:"txHash,omitempty"`
		Message string        `json:"message"`

		Extra     AttemptExtra `json:"extra,omitempty"`
		CreatedAt int64        `json:"createdAt"`
		UpdatedAt int64        `json:"updatedAt"`
	}

	AttemptExtra struct {
		Plan          *LiquidationPlan `json:"plan,omitempty"`
		BonusPerMille int64            `json:"bonusPerMille,omitempty"`
		HealthRatio   string           `json:"healthRatio,omitempty"`
	}
)

func NewAttempt(clk clock.Clock, id, loan string, action Action, extra AttemptExtra) *Attempt {
	now := clk.Now().Unix()
	return &Attempt{
		Id:        id,
		Loan:      loan,
		Action:    action,
		Status:    AttemptStatusPending,
		Extra:     extra,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j AttemptExtra) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *AttemptExtra) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	case nil:
		return nil
	default:
		return errors.Errorf("unsupported attempt extra type %T", value)
	}
}

type AttemptStatus string

const (
	AttemptStatusPending         AttemptStatus = "pending"
	AttemptStatusLiquidated      AttemptStatus = "liquidated"
	AttemptStatusReverted        AttemptStatus = "reverted"
	AttemptStatusNotLiquidatable AttemptStatus = "not_liquidatable"
	AttemptStatusFailed          AttemptStatus = "failed"
	AttemptStatusUnknown         AttemptStatus = "unknown"
)

func (s AttemptStatus) String() string {
	switch s {
	case AttemptStatusPending, AttemptStatusLiquidated, AttemptStatusReverted,
		AttemptStatusNotLiquidatable, AttemptStatusFailed, AttemptStatusUnknown:
		return string(s)
	default:
		return "unknown"
	}
}

// Unresolved attempts may still land on chain.
func (s AttemptStatus) Unresolved() bool {
	return s == AttemptStatusPending || s == AttemptStatusUnknown
}

func (a *Attempt) UpdateStatus(clk clock.Clock, status AttemptStatus, message string) {
	a.Status = status
	a.Message = message
	a.UpdatedAt = clk.Now().Unix()
}
