package risk

import (
	"context"
	"fmt"
)

// MarkCompliant transitions the seller to compliant on behalf of the given
// author, appending an audit comment and a transition row.
func (service *Service) MarkCompliant(ctx context.Context, userID UserID, author AuthorName, content string) error {
	return service.markState(ctx, userID, RiskStateCompliant, author, content)
}

// MarkNotReviewed transitions the seller back to the default state.
func (service *Service) MarkNotReviewed(ctx context.Context, userID UserID, author AuthorName, content string) error {
	return service.markState(ctx, userID, RiskStateNotReviewed, author, content)
}

// PutOnProbation transitions the seller to probation. Unlike the automated
// low-balance path this does not touch the refund gate; a manual probation
// and the gate are separate admin decisions.
func (service *Service) PutOnProbation(ctx context.Context, userID UserID, author AuthorName, content string) error {
	return service.markState(ctx, userID, RiskStateOnProbation, author, content)
}

// SuspendForFraud transitions the seller to the fraud suspension state.
func (service *Service) SuspendForFraud(ctx context.Context, userID UserID, author AuthorName, content string) error {
	return service.markState(ctx, userID, RiskStateSuspendedFraud, author, content)
}

// SuspendForTosViolation transitions the seller to the TOS suspension state.
func (service *Service) SuspendForTosViolation(ctx context.Context, userID UserID, author AuthorName, content string) error {
	return service.markState(ctx, userID, RiskStateSuspendedForTos, author, content)
}

func (service *Service) markState(ctx context.Context, userID UserID, targetState RiskState, author AuthorName, content string) error {
	if author == (AuthorName{}) {
		return fmt.Errorf("%w: empty value", ErrInvalidAuthorName)
	}
	if content == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidContent)
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfileForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		return applyState(ctx, transactionStore, profile, targetState, author, content, "", service.nowFn())
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationMarkState,
		UserID:    userID,
		State:     targetState,
		Error:     operationError,
	})
	return operationError
}
