package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	balanceStateUnpaid    = "unpaid"
	processorPaypal       = "paypal"
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	dialectPostgres       = "postgres"

	errorOperationStore    = "store"
	errorSubjectProfile    = "profile"
	errorSubjectBalance    = "balance"
	errorSubjectComment    = "comment"
	errorSubjectTransition = "transition"
	errorCodeCreate        = "create"
	errorCodeDuplicate     = "duplicate"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeLookup        = "lookup"
	errorCodeSum           = "sum"
	errorCodeUpdate        = "update"
)

// Store implements risk.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Postgres deployments manage schema through
// migrations; sqlite (dev, tests) relies on AutoMigrate.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&RiskProfile{}, &RiskComment{}, &RiskTransition{}, &BalanceEntry{}, &PaymentRecord{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore risk.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// CreateProfile inserts a fresh profile in the default state.
func (store *Store) CreateProfile(ctx context.Context, userID risk.UserID) error {
	model := RiskProfile{
		UserID: userID.String(),
		State:  risk.RiskStateNotReviewed.String(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectProfile, errorCodeDuplicate, risk.ErrProfileExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectProfile, errorCodeCreate, err)
	}
	return nil
}

// GetProfileForUpdate loads a profile, locking its row when the dialect
// supports it so concurrent checks for one seller serialize. sqlite has a
// single writer and needs no row lock.
func (store *Store) GetProfileForUpdate(ctx context.Context, userID risk.UserID) (risk.Profile, error) {
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model RiskProfile
	err := query.Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return risk.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, risk.ErrProfileNotFound)
		}
		return risk.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, err)
	}
	return mapProfile(model)
}

// UpdateProfile persists the state and refund gate of an existing profile.
func (store *Store) UpdateProfile(ctx context.Context, profile risk.Profile) error {
	result := store.db.WithContext(ctx).
		Model(&RiskProfile{}).
		Where("user_id = ?", profile.UserID.String()).
		Updates(map[string]interface{}{
			"state":            profile.State.String(),
			"refunds_disabled": profile.RefundsDisabled,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectProfile, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProfile, errorCodeUpdate, risk.ErrProfileNotFound)
	}
	return nil
}

// UnpaidBalanceCents sums the seller's unpaid ledger entries.
func (store *Store) UnpaidBalanceCents(ctx context.Context, userID risk.UserID) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&BalanceEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("user_id = ?", userID.String()).
		Where("state = ?", balanceStateUnpaid).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

// PayoutAmountCents sums unpaid ledger entries dated on or before the payout
// cutoff, restricted to sellers with a PayPal payment since paymentsSince.
func (store *Store) PayoutAmountCents(ctx context.Context, payoutDateCutoff time.Time, paymentsSince time.Time) (int64, error) {
	recentPaypalPayees := store.db.
		Model(&PaymentRecord{}).
		Select("user_id").
		Where("processor = ?", processorPaypal).
		Where("created_at > ?", paymentsSince.UTC())
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&BalanceEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("state = ?", balanceStateUnpaid).
		Where("date <= ?", payoutDateCutoff.UTC()).
		Where("user_id in (?)", recentPaypalPayees).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

// AppendComment inserts an audit comment row.
func (store *Store) AppendComment(ctx context.Context, input risk.CommentInput) error {
	model := RiskComment{
		UserID:     input.UserID.String(),
		Type:       input.Type.String(),
		AuthorName: input.AuthorName.String(),
		Content:    input.Content,
		Metadata:   datatypesJSON(input.MetadataJSON),
		CreatedAt:  time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if input.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectComment, errorCodeInsert, err)
	}
	return nil
}

// HasCommentSince reports whether a matching comment exists strictly after
// sinceUnixUTC.
func (store *Store) HasCommentSince(ctx context.Context, userID risk.UserID, commentType risk.CommentType, author risk.AuthorName, sinceUnixUTC int64) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&RiskComment{}).
		Where("user_id = ? AND type = ? AND author_name = ?", userID.String(), commentType.String(), author.String()).
		Where("created_at > ?", time.Unix(sinceUnixUTC, 0).UTC()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectComment, errorCodeLookup, err)
	}
	return count > 0, nil
}

// LatestComment returns the newest matching comment, ordering by
// (created_at, comment_id) descending so same-second writes stay
// deterministic. Returns nil when no comment matches.
func (store *Store) LatestComment(ctx context.Context, userID risk.UserID, commentType risk.CommentType, author risk.AuthorName) (*risk.Comment, error) {
	var model RiskComment
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND author_name = ?", userID.String(), commentType.String(), author.String()).
		Order("created_at DESC, comment_id DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStoreError(errorSubjectComment, errorCodeGet, err)
	}
	comment, err := mapComment(model)
	if err != nil {
		return nil, wrapStoreError(errorSubjectComment, errorCodeInvalid, err)
	}
	return &comment, nil
}

// HasRiskStateCommentAfter reports whether any risk-state comment has an id
// greater than afterCommentID.
func (store *Store) HasRiskStateCommentAfter(ctx context.Context, userID risk.UserID, afterCommentID int64) (bool, error) {
	riskTypes := risk.RiskStateCommentTypes()
	typeValues := make([]string, 0, len(riskTypes))
	for _, riskType := range riskTypes {
		typeValues = append(typeValues, riskType.String())
	}
	var count int64
	err := store.db.WithContext(ctx).
		Model(&RiskComment{}).
		Where("user_id = ? AND comment_id > ?", userID.String(), afterCommentID).
		Where("type in ?", typeValues).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectComment, errorCodeLookup, err)
	}
	return count > 0, nil
}

// LatestTransitionTo returns the newest transition into the given state, or
// nil when the log has none.
func (store *Store) LatestTransitionTo(ctx context.Context, userID risk.UserID, state risk.RiskState) (*risk.StateTransition, error) {
	var model RiskTransition
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND to_state = ?", userID.String(), state.String()).
		Order("created_at DESC, transition_id DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapStoreError(errorSubjectTransition, errorCodeGet, err)
	}
	transition, err := mapTransition(model)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransition, errorCodeInvalid, err)
	}
	return &transition, nil
}

// AppendTransition inserts a transition-log row.
func (store *Store) AppendTransition(ctx context.Context, input risk.TransitionInput) error {
	model := RiskTransition{
		UserID:     input.UserID.String(),
		FromState:  input.FromState.String(),
		ToState:    input.ToState.String(),
		AuthorName: input.AuthorName.String(),
		CreatedAt:  time.Unix(input.CreatedUnixUTC, 0).UTC(),
	}
	if input.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTransition, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return risk.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapProfile(model RiskProfile) (risk.Profile, error) {
	userID, err := risk.NewUserID(model.UserID)
	if err != nil {
		return risk.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	state, err := risk.ParseRiskState(model.State)
	if err != nil {
		return risk.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	return risk.Profile{
		UserID:          userID,
		State:           state,
		RefundsDisabled: model.RefundsDisabled,
	}, nil
}

func mapComment(model RiskComment) (risk.Comment, error) {
	userID, err := risk.NewUserID(model.UserID)
	if err != nil {
		return risk.Comment{}, err
	}
	commentType, err := risk.ParseCommentType(model.Type)
	if err != nil {
		return risk.Comment{}, err
	}
	author, err := risk.NewAuthorName(model.AuthorName)
	if err != nil {
		return risk.Comment{}, err
	}
	return risk.Comment{
		ID:             model.CommentID,
		UserID:         userID,
		Type:           commentType,
		AuthorName:     author,
		Content:        model.Content,
		MetadataJSON:   string(model.Metadata),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapTransition(model RiskTransition) (risk.StateTransition, error) {
	userID, err := risk.NewUserID(model.UserID)
	if err != nil {
		return risk.StateTransition{}, err
	}
	toState, err := risk.ParseRiskState(model.ToState)
	if err != nil {
		return risk.StateTransition{}, err
	}
	author, err := risk.NewAuthorName(model.AuthorName)
	if err != nil {
		return risk.StateTransition{}, err
	}
	// FromState may be blank on legacy rows; the engine treats blank as
	// not_reviewed, so it passes through unparsed.
	return risk.StateTransition{
		ID:             model.TransitionID,
		UserID:         userID,
		FromState:      risk.RiskState(model.FromState),
		ToState:        toState,
		AuthorName:     author,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
