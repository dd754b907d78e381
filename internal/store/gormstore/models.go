package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RiskProfile represents the risk_profiles table: one row per seller,
// holding the current risk state and the refund gate.
type RiskProfile struct {
	UserID          string    `gorm:"primaryKey"`
	State           string    `gorm:"type:risk_state;not null;default:not_reviewed"`
	RefundsDisabled bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (RiskProfile) TableName() string { return "risk_profiles" }

// RiskComment mirrors the risk_comments table. Rows are append-only; the
// autoincrement id is the tiebreaker for "most recent".
type RiskComment struct {
	CommentID  int64          `gorm:"primaryKey;autoIncrement"`
	UserID     string         `gorm:"not null;index:idx_risk_comments_user_type_author,priority:1"`
	Type       string         `gorm:"type:risk_comment_type;not null;index:idx_risk_comments_user_type_author,priority:2"`
	AuthorName string         `gorm:"not null;index:idx_risk_comments_user_type_author,priority:3"`
	Content    string         `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

func (RiskComment) TableName() string { return "risk_comments" }

// RiskTransition mirrors the risk_transitions table: the first-class
// state-transition log written alongside every risk-state change.
type RiskTransition struct {
	TransitionID int64     `gorm:"primaryKey;autoIncrement"`
	UserID       string    `gorm:"not null;index:idx_risk_transitions_user_to,priority:1"`
	FromState    string    `gorm:"not null"`
	ToState      string    `gorm:"type:risk_state;not null;index:idx_risk_transitions_user_to,priority:2"`
	AuthorName   string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (RiskTransition) TableName() string { return "risk_transitions" }

// BalanceEntry mirrors the balances table owned by the payments subsystem.
// This store only ever reads it.
type BalanceEntry struct {
	EntryID     string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index:idx_balances_user_state,priority:1"`
	AmountCents int64     `gorm:"not null"`
	Date        time.Time `gorm:"not null;index"`
	State       string    `gorm:"not null;index:idx_balances_user_state,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (BalanceEntry) TableName() string { return "balances" }

func (entry *BalanceEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// PaymentRecord mirrors the payments table owned by the payouts subsystem,
// read here to find recently paid PayPal payees.
type PaymentRecord struct {
	PaymentID   string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index"`
	Processor   string    `gorm:"not null;index:idx_payments_processor_created,priority:1"`
	AmountCents int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index:idx_payments_processor_created,priority:2"`
}

func (PaymentRecord) TableName() string { return "payments" }

func (payment *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}
