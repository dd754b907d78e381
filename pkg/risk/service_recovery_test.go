package risk

import (
	"context"
	"testing"
)

const (
	recoveryUserIDValue    = "seller-77"
	adminAuthorValue       = "iffy-admin"
	expectedRecoveryText   = "Probation removed automatically on March 15, 2024 as balance has recovered to $100"
	probationCommentText   = "automated probation"
	manualCompliantComment = "manually verified"
)

func probateByEngine(test *testing.T, store *stubStore, userID UserID, previousState RiskState, atUnixUTC int64) Comment {
	test.Helper()
	comment := store.addComment(test, CommentInput{
		UserID:         userID,
		Type:           CommentTypeOnProbation,
		AuthorName:     EngineAuthorName(),
		Content:        probationCommentText,
		CreatedUnixUTC: atUnixUTC,
	})
	store.addTransition(test, TransitionInput{
		UserID:         userID,
		FromState:      previousState,
		ToState:        RiskStateOnProbation,
		AuthorName:     EngineAuthorName(),
		CreatedUnixUTC: atUnixUTC,
	})
	store.addProfile(test, userID, RiskStateOnProbation, true)
	return comment
}

func TestHighBalanceCheckRestoresPreProbationState(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name          string
		previousState RiskState
	}{
		{name: "compliant", previousState: RiskStateCompliant},
		{name: "not reviewed", previousState: RiskStateNotReviewed},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			userID := mustUserID(test, recoveryUserIDValue)
			probateByEngine(test, store, userID, testCase.previousState, fixedNow.AddDate(0, -1, 0).Unix())
			store.setBalance(userID, HighBalanceThresholdCents)
			service := mustNewService(test, store)

			if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
				test.Fatalf("high balance check: %v", err)
			}

			profile := store.mustProfile(test, userID)
			if profile.State != testCase.previousState {
				test.Fatalf("expected %s restored, got %s", testCase.previousState, profile.State)
			}
			recoveryType, err := CommentTypeForState(testCase.previousState)
			if err != nil {
				test.Fatalf("comment type: %v", err)
			}
			recoveryComments := store.commentsOfType(recoveryType)
			if len(recoveryComments) != 1 {
				test.Fatalf("expected one recovery comment, got %d", len(recoveryComments))
			}
			if recoveryComments[0].Content != expectedRecoveryText {
				test.Fatalf("unexpected recovery content %q", recoveryComments[0].Content)
			}
			if recoveryComments[0].AuthorName != EngineAuthorName() {
				test.Fatalf("expected engine author, got %s", recoveryComments[0].AuthorName.String())
			}
		})
	}
}

func TestHighBalanceCheckRequiresRecoveredBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	probateByEngine(test, store, userID, RiskStateCompliant, fixedNow.AddDate(0, -1, 0).Unix())
	store.setBalance(userID, HighBalanceThresholdCents-1)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateOnProbation {
		test.Fatalf("expected probation to remain below threshold")
	}
}

func TestHighBalanceCheckIgnoresNonProbatedSellers(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	store.addProfile(test, userID, RiskStateCompliant, false)
	store.setBalance(userID, 500_00)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if len(store.comments) != 0 {
		test.Fatalf("expected no comments, got %d", len(store.comments))
	}
}

func TestHighBalanceCheckStandsDownWithoutEngineProbationComment(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	// Probation applied manually: same state, but no engine-authored comment.
	store.addComment(test, CommentInput{
		UserID:         userID,
		Type:           CommentTypeOnProbation,
		AuthorName:     mustAuthorName(test, adminAuthorValue),
		Content:        "manual probation",
		CreatedUnixUTC: fixedNow.AddDate(0, -1, 0).Unix(),
	})
	store.addProfile(test, userID, RiskStateOnProbation, false)
	store.setBalance(userID, 200_00)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateOnProbation {
		test.Fatalf("expected manual probation untouched")
	}
}

func TestHighBalanceCheckNeverOverridesNewerManualTransition(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	probateByEngine(test, store, userID, RiskStateCompliant, fixedNow.AddDate(0, -1, 0).Unix())
	// An admin acted after the automated probation.
	store.addComment(test, CommentInput{
		UserID:         userID,
		Type:           CommentTypeCompliant,
		AuthorName:     mustAuthorName(test, adminAuthorValue),
		Content:        manualCompliantComment,
		CreatedUnixUTC: fixedNow.AddDate(0, 0, -2).Unix(),
	})
	store.addProfile(test, userID, RiskStateOnProbation, true)
	store.setBalance(userID, 300_00)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateOnProbation {
		test.Fatalf("expected state untouched after newer manual transition")
	}
	if len(store.commentsOfType(CommentTypeCompliant)) != 1 {
		test.Fatalf("expected no additional compliant comment")
	}
}

func TestHighBalanceCheckIgnoresNonRiskCommentsAfterProbation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	probateByEngine(test, store, userID, RiskStateCompliant, fixedNow.AddDate(0, -1, 0).Unix())
	// Free-form notes do not count as risk-state transitions.
	store.addComment(test, CommentInput{
		UserID:         userID,
		Type:           CommentTypeNote,
		AuthorName:     mustAuthorName(test, adminAuthorValue),
		Content:        "looked at this account, nothing to do yet",
		CreatedUnixUTC: fixedNow.AddDate(0, 0, -1).Unix(),
	})
	store.setBalance(userID, HighBalanceThresholdCents)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateCompliant {
		test.Fatalf("expected compliant restored, got %s", store.mustProfile(test, userID).State)
	}
}

func TestHighBalanceCheckDefaultsToNotReviewedWithoutTransitionLog(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	store.addComment(test, CommentInput{
		UserID:         userID,
		Type:           CommentTypeOnProbation,
		AuthorName:     EngineAuthorName(),
		Content:        probationCommentText,
		CreatedUnixUTC: fixedNow.AddDate(0, -1, 0).Unix(),
	})
	store.addProfile(test, userID, RiskStateOnProbation, true)
	store.setBalance(userID, 150_00)
	service := mustNewService(test, store)

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateNotReviewed {
		test.Fatalf("expected not_reviewed fallback, got %s", store.mustProfile(test, userID).State)
	}
}

func TestHighBalanceCheckReportsUnknownPreviousState(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	probateByEngine(test, store, userID, RiskStateSuspendedFraud, fixedNow.AddDate(0, -1, 0).Unix())
	store.setBalance(userID, 150_00)
	reporter := &stubReporter{}
	service := mustNewService(test, store, WithAnomalyReporter(reporter))

	if err := service.CheckForHighBalanceAndRemoveLowBalanceProbation(context.Background(), userID); err != nil {
		test.Fatalf("high balance check: %v", err)
	}

	if store.mustProfile(test, userID).State != RiskStateOnProbation {
		test.Fatalf("expected state left unchanged on anomaly")
	}
	if len(reporter.messages) != 1 {
		test.Fatalf("expected one anomaly report, got %d", len(reporter.messages))
	}
}

func TestManualMarkWritesCommentAndTransition(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, recoveryUserIDValue)
	store.addProfile(test, userID, RiskStateNotReviewed, false)
	author := mustAuthorName(test, adminAuthorValue)
	service := mustNewService(test, store)

	if err := service.MarkCompliant(context.Background(), userID, author, manualCompliantComment); err != nil {
		test.Fatalf("mark compliant: %v", err)
	}

	profile := store.mustProfile(test, userID)
	if profile.State != RiskStateCompliant {
		test.Fatalf("expected compliant, got %s", profile.State)
	}
	if profile.RefundsDisabled {
		test.Fatalf("manual mark must not touch the refund gate")
	}
	if len(store.transitions) != 1 {
		test.Fatalf("expected one transition, got %d", len(store.transitions))
	}
	if store.transitions[0].FromState != RiskStateNotReviewed || store.transitions[0].ToState != RiskStateCompliant {
		test.Fatalf("unexpected transition %s -> %s", store.transitions[0].FromState, store.transitions[0].ToState)
	}
	comments := store.commentsOfType(CommentTypeCompliant)
	if len(comments) != 1 || comments[0].AuthorName != author {
		test.Fatalf("expected one compliant comment by %s", author.String())
	}
}
