package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Service contains the probation-engine logic over a Store.
type Service struct {
	store    Store
	nowFn    func() int64
	logger   OperationLogger
	notifier AdminNotifier
	reporter AnomalyReporter
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// EngineAuthorName returns the author name the engine writes into the audit
// trail.
func EngineAuthorName() AuthorName {
	return AuthorName{value: lowBalanceCheckAuthorName}
}

// Profile returns the persisted risk profile plus the derived unpaid balance.
func (service *Service) Profile(ctx context.Context, userID UserID) (ProfileView, error) {
	var view ProfileView
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balance, err := transactionStore.UnpaidBalanceCents(ctx, userID)
		if err != nil {
			return err
		}
		view = ProfileView{
			UserID:             profile.UserID,
			State:              profile.State,
			RefundsDisabled:    profile.RefundsDisabled,
			UnpaidBalanceCents: balance,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationProfile,
		UserID:          userID,
		State:           view.State,
		RefundsDisabled: view.RefundsDisabled,
		BalanceCents:    view.UnpaidBalanceCents,
		Error:           operationError,
	})
	return view, operationError
}

// CheckForLowBalanceAndProbate disables refunds and puts the seller on
// probation when the unpaid balance is at or below the low threshold,
// unless the seller is suspended or was already probated by this engine
// within the cooldown window. Operators are notified of the low balance
// whenever the threshold fires, regardless of the probation decision.
func (service *Service) CheckForLowBalanceAndProbate(ctx context.Context, userID UserID, triggeringEventID string) error {
	var (
		balanceCents  int64
		thresholdHit  bool
		probated      bool
		probatedState RiskState
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balanceCents, err = transactionStore.UnpaidBalanceCents(ctx, userID)
		if err != nil {
			return err
		}
		if balanceCents > LowBalanceThresholdCents {
			return nil
		}
		thresholdHit = true
		if profile.State.IsSuspended() {
			return nil
		}
		nowUnixUTC := service.nowFn()
		cooldownStart := addMonths(nowUnixUTC, -probationCooldownMonths)
		recentlyProbated, err := transactionStore.HasCommentSince(ctx, userID, CommentTypeOnProbation, EngineAuthorName(), cooldownStart)
		if err != nil {
			return err
		}
		if recentlyProbated {
			return nil
		}
		if err := service.disableRefundsAndPutOnProbation(ctx, transactionStore, profile, triggeringEventID, nowUnixUTC); err != nil {
			return err
		}
		probated = true
		probatedState = RiskStateOnProbation
		return nil
	})
	if thresholdHit && operationError == nil && service.notifier != nil {
		service.notifier.NotifyLowBalance(ctx, LowBalanceNotice{
			UserID:            userID,
			TriggeringEventID: triggeringEventID,
			BalanceCents:      balanceCents,
		})
	}
	status := operationStatusSkipped
	if probated {
		status = operationStatusOK
	}
	service.logOperation(ctx, OperationLog{
		Operation:         operationLowBalanceCheck,
		UserID:            userID,
		State:             probatedState,
		RefundsDisabled:   probated,
		BalanceCents:      balanceCents,
		TriggeringEventID: triggeringEventID,
		Status:            status,
		Error:             operationError,
	})
	return operationError
}

// CheckForHighBalanceAndRemoveLowBalanceProbation lifts an automated
// probation once the unpaid balance has recovered to the high threshold,
// restoring the risk state that existed before the probation. The check
// stands down when the current probation cannot be attributed to this
// engine or when a newer risk-state change happened after it.
func (service *Service) CheckForHighBalanceAndRemoveLowBalanceProbation(ctx context.Context, userID UserID) error {
	var (
		balanceCents  int64
		restoredState RiskState
		restored      bool
		anomaly       string
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balanceCents, err = transactionStore.UnpaidBalanceCents(ctx, userID)
		if err != nil {
			return err
		}
		if balanceCents < HighBalanceThresholdCents {
			return nil
		}
		if profile.State != RiskStateOnProbation {
			return nil
		}
		probationComment, err := transactionStore.LatestComment(ctx, userID, CommentTypeOnProbation, EngineAuthorName())
		if err != nil {
			return err
		}
		if probationComment == nil {
			return nil
		}
		hasNewerTransition, err := transactionStore.HasRiskStateCommentAfter(ctx, userID, probationComment.ID)
		if err != nil {
			return err
		}
		if hasNewerTransition {
			return nil
		}
		previousState, err := previousStateBeforeProbation(ctx, transactionStore, userID)
		if err != nil {
			return err
		}
		switch previousState {
		case RiskStateCompliant, RiskStateNotReviewed:
		default:
			anomaly = fmt.Sprintf("unknown previous risk state %q for low-balance probation recovery (user_id=%s)", previousState, userID.String())
			return nil
		}
		nowUnixUTC := service.nowFn()
		content := fmt.Sprintf(probationRemovedContentFormat, formatFullMonthDate(nowUnixUTC))
		if err := applyState(ctx, transactionStore, profile, previousState, EngineAuthorName(), content, "", nowUnixUTC); err != nil {
			return err
		}
		restoredState = previousState
		restored = true
		return nil
	})
	if anomaly != "" && operationError == nil && service.reporter != nil {
		service.reporter.ReportAnomaly(ctx, anomaly)
	}
	status := operationStatusSkipped
	if restored {
		status = operationStatusOK
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationHighBalanceCheck,
		UserID:       userID,
		State:        restoredState,
		BalanceCents: balanceCents,
		Status:       status,
		Error:        operationError,
	})
	return operationError
}

// EnableRefunds clears the refund gate. No risk-state side effects.
func (service *Service) EnableRefunds(ctx context.Context, userID UserID) error {
	return service.setRefundsDisabled(ctx, userID, false, operationEnableRefunds)
}

// DisableRefunds sets the refund gate. No risk-state side effects.
func (service *Service) DisableRefunds(ctx context.Context, userID UserID) error {
	return service.setRefundsDisabled(ctx, userID, true, operationDisableRefunds)
}

func (service *Service) setRefundsDisabled(ctx context.Context, userID UserID, disabled bool, operation string) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		profile.RefundsDisabled = disabled
		return transactionStore.UpdateProfile(ctx, profile)
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operation,
		UserID:          userID,
		RefundsDisabled: disabled,
		Error:           operationError,
	})
	return operationError
}

func (service *Service) disableRefundsAndPutOnProbation(ctx context.Context, transactionStore Store, profile Profile, triggeringEventID string, nowUnixUTC int64) error {
	profile.RefundsDisabled = true
	content := fmt.Sprintf(probationAppliedContentFormat, formatFullMonthDate(nowUnixUTC))
	metadata, err := encodeTriggerMetadata(triggeringEventID)
	if err != nil {
		return err
	}
	return applyState(ctx, transactionStore, profile, RiskStateOnProbation, EngineAuthorName(), content, metadata, nowUnixUTC)
}

// applyState persists a state change plus its audit comment and transition
// row as one unit inside the caller's transaction. The profile argument
// carries any refund-gate change the caller staged.
func applyState(ctx context.Context, transactionStore Store, profile Profile, targetState RiskState, author AuthorName, content string, metadataJSON string, nowUnixUTC int64) error {
	commentType, err := CommentTypeForState(targetState)
	if err != nil {
		return err
	}
	previousState := profile.State
	profile.State = targetState
	if err := transactionStore.UpdateProfile(ctx, profile); err != nil {
		return err
	}
	if err := transactionStore.AppendComment(ctx, CommentInput{
		UserID:         profile.UserID,
		Type:           commentType,
		AuthorName:     author,
		Content:        content,
		MetadataJSON:   metadataJSON,
		CreatedUnixUTC: nowUnixUTC,
	}); err != nil {
		return err
	}
	return transactionStore.AppendTransition(ctx, TransitionInput{
		UserID:         profile.UserID,
		FromState:      previousState,
		ToState:        targetState,
		AuthorName:     author,
		CreatedUnixUTC: nowUnixUTC,
	})
}

// previousStateBeforeProbation recovers the state that held immediately
// before the newest transition into probation. A missing transition row or
// a blank recorded state defaults to not_reviewed; any other value is
// returned as-is for the caller to judge.
func previousStateBeforeProbation(ctx context.Context, transactionStore Store, userID UserID) (RiskState, error) {
	transition, err := transactionStore.LatestTransitionTo(ctx, userID, RiskStateOnProbation)
	if err != nil {
		return "", err
	}
	if transition == nil {
		return RiskStateNotReviewed, nil
	}
	if transition.FromState == "" {
		return RiskStateNotReviewed, nil
	}
	return transition.FromState, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	if entry.Error != nil {
		entry.Status = operationStatusError
	}
	service.logger.LogOperation(ctx, entry)
}

func encodeTriggerMetadata(triggeringEventID string) (string, error) {
	if triggeringEventID == "" {
		return "", nil
	}
	encoded, err := json.Marshal(map[string]string{"triggering_event_id": triggeringEventID})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// addMonths shifts a unix timestamp by calendar months in UTC.
func addMonths(unixUTC int64, months int) int64 {
	return time.Unix(unixUTC, 0).UTC().AddDate(0, months, 0).Unix()
}

func formatFullMonthDate(unixUTC int64) string {
	return time.Unix(unixUTC, 0).UTC().Format(fullMonthDateLayout)
}
