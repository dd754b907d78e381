package risk

import (
	"context"
	"fmt"
	"strings"
)

// UserID identifies a seller.
type UserID struct {
	value string
}

// AuthorName attributes a risk-state change to an actor (a human admin or
// an automated check).
type AuthorName struct {
	value string
}

// RiskState enumerates the seller risk states.
type RiskState string

const (
	RiskStateNotReviewed     RiskState = "not_reviewed"
	RiskStateCompliant       RiskState = "compliant"
	RiskStateOnProbation     RiskState = "on_probation"
	RiskStateSuspendedFraud  RiskState = "suspended_for_fraud"
	RiskStateSuspendedForTos RiskState = "suspended_for_tos_violation"
)

// CommentType enumerates audit comment kinds.
type CommentType string

const (
	CommentTypeOnProbation     CommentType = "on_probation"
	CommentTypeCompliant       CommentType = "compliant"
	CommentTypeNotReviewed     CommentType = "not_reviewed"
	CommentTypeSuspendedFraud  CommentType = "suspended_for_fraud"
	CommentTypeSuspendedForTos CommentType = "suspended_for_tos_violation"
	CommentTypeFlagged         CommentType = "flagged"
	CommentTypeNote            CommentType = "note"
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewAuthorName validates and normalizes an author name.
func NewAuthorName(raw string) (AuthorName, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AuthorName{}, fmt.Errorf("%w: empty value", ErrInvalidAuthorName)
	}
	return AuthorName{value: trimmed}, nil
}

// String returns the normalized author name.
func (name AuthorName) String() string {
	return name.value
}

// ParseRiskState validates a stored risk state value.
func ParseRiskState(raw string) (RiskState, error) {
	state := RiskState(raw)
	switch state {
	case RiskStateNotReviewed, RiskStateCompliant, RiskStateOnProbation, RiskStateSuspendedFraud, RiskStateSuspendedForTos:
		return state, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRiskState, raw)
}

// String returns the stored representation.
func (state RiskState) String() string {
	return string(state)
}

// IsSuspended reports whether the state is terminal for automated checks.
func (state RiskState) IsSuspended() bool {
	return state == RiskStateSuspendedFraud || state == RiskStateSuspendedForTos
}

// ParseCommentType validates a stored comment type value.
func ParseCommentType(raw string) (CommentType, error) {
	commentType := CommentType(raw)
	switch commentType {
	case CommentTypeOnProbation, CommentTypeCompliant, CommentTypeNotReviewed,
		CommentTypeSuspendedFraud, CommentTypeSuspendedForTos, CommentTypeFlagged, CommentTypeNote:
		return commentType, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCommentType, raw)
}

// String returns the stored representation.
func (commentType CommentType) String() string {
	return string(commentType)
}

// RiskStateCommentTypes lists the comment types that record a risk-state
// transition. A comment of any of these types after an automated probation
// means a human or another process has acted since.
func RiskStateCommentTypes() []CommentType {
	return []CommentType{
		CommentTypeOnProbation,
		CommentTypeCompliant,
		CommentTypeNotReviewed,
		CommentTypeSuspendedFraud,
		CommentTypeSuspendedForTos,
	}
}

// CommentTypeForState maps a risk state to the comment type recorded when
// transitioning into it.
func CommentTypeForState(state RiskState) (CommentType, error) {
	switch state {
	case RiskStateNotReviewed:
		return CommentTypeNotReviewed, nil
	case RiskStateCompliant:
		return CommentTypeCompliant, nil
	case RiskStateOnProbation:
		return CommentTypeOnProbation, nil
	case RiskStateSuspendedFraud:
		return CommentTypeSuspendedFraud, nil
	case RiskStateSuspendedForTos:
		return CommentTypeSuspendedForTos, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRiskState, state)
}

// Profile is the persisted risk profile for a seller.
type Profile struct {
	UserID          UserID
	State           RiskState
	RefundsDisabled bool
}

// Comment is a stored, append-only audit record. ID is monotonic within a
// store; "most recent" ordering is (CreatedUnixUTC, ID) descending.
type Comment struct {
	ID             int64
	UserID         UserID
	Type           CommentType
	AuthorName     AuthorName
	Content        string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// CommentInput carries a new audit comment to the store.
type CommentInput struct {
	UserID         UserID
	Type           CommentType
	AuthorName     AuthorName
	Content        string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// StateTransition is one row of the first-class transition log written on
// every risk-state change.
type StateTransition struct {
	ID             int64
	UserID         UserID
	FromState      RiskState
	ToState        RiskState
	AuthorName     AuthorName
	CreatedUnixUTC int64
}

// TransitionInput carries a new transition-log row to the store.
type TransitionInput struct {
	UserID         UserID
	FromState      RiskState
	ToState        RiskState
	AuthorName     AuthorName
	CreatedUnixUTC int64
}

// ProfileView is the read model returned by Service.Profile: the persisted
// profile plus the derived unpaid balance.
type ProfileView struct {
	UserID             UserID
	State              RiskState
	RefundsDisabled    bool
	UnpaidBalanceCents int64
}

// LowBalanceNotice describes the admin notification emitted when a
// seller's balance crosses the low threshold.
type LowBalanceNotice struct {
	UserID            UserID
	TriggeringEventID string
	BalanceCents      int64
}

// Store is the persistence contract used by Service.
// (gormstore implements this.)
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// GetProfileForUpdate loads a profile and, inside a transaction, locks
	// its row so concurrent checks for the same seller serialize.
	GetProfileForUpdate(ctx context.Context, userID UserID) (Profile, error)
	UpdateProfile(ctx context.Context, profile Profile) error
	UnpaidBalanceCents(ctx context.Context, userID UserID) (int64, error)
	AppendComment(ctx context.Context, comment CommentInput) error
	HasCommentSince(ctx context.Context, userID UserID, commentType CommentType, author AuthorName, sinceUnixUTC int64) (bool, error)
	LatestComment(ctx context.Context, userID UserID, commentType CommentType, author AuthorName) (*Comment, error)
	HasRiskStateCommentAfter(ctx context.Context, userID UserID, afterCommentID int64) (bool, error)
	LatestTransitionTo(ctx context.Context, userID UserID, state RiskState) (*StateTransition, error)
	AppendTransition(ctx context.Context, transition TransitionInput) error
}
