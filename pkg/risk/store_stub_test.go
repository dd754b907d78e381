package risk

import (
	"context"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() int64 {
	return fixedNow.Unix()
}

type stubStore struct {
	profiles         map[string]Profile
	balances         map[string]int64
	comments         []Comment
	transitions      []StateTransition
	nextCommentID    int64
	nextTransitionID int64

	getProfileError       error
	updateProfileError    error
	balanceError          error
	appendCommentError    error
	hasCommentError       error
	latestCommentError    error
	hasRiskCommentError   error
	latestTransitionError error
	appendTransitionError error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		profiles:         map[string]Profile{},
		balances:         map[string]int64{},
		nextCommentID:    1,
		nextTransitionID: 1,
	}
}

func (store *stubStore) addProfile(test *testing.T, userID UserID, state RiskState, refundsDisabled bool) {
	test.Helper()
	store.profiles[userID.String()] = Profile{UserID: userID, State: state, RefundsDisabled: refundsDisabled}
}

func (store *stubStore) setBalance(userID UserID, balanceCents int64) {
	store.balances[userID.String()] = balanceCents
}

func (store *stubStore) addComment(test *testing.T, input CommentInput) Comment {
	test.Helper()
	comment := Comment{
		ID:             store.nextCommentID,
		UserID:         input.UserID,
		Type:           input.Type,
		AuthorName:     input.AuthorName,
		Content:        input.Content,
		MetadataJSON:   input.MetadataJSON,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.nextCommentID++
	store.comments = append(store.comments, comment)
	return comment
}

func (store *stubStore) addTransition(test *testing.T, input TransitionInput) StateTransition {
	test.Helper()
	transition := StateTransition{
		ID:             store.nextTransitionID,
		UserID:         input.UserID,
		FromState:      input.FromState,
		ToState:        input.ToState,
		AuthorName:     input.AuthorName,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.nextTransitionID++
	store.transitions = append(store.transitions, transition)
	return transition
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetProfileForUpdate(ctx context.Context, userID UserID) (Profile, error) {
	if store.getProfileError != nil {
		return Profile{}, store.getProfileError
	}
	profile, exists := store.profiles[userID.String()]
	if !exists {
		return Profile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (store *stubStore) UpdateProfile(ctx context.Context, profile Profile) error {
	if store.updateProfileError != nil {
		return store.updateProfileError
	}
	store.profiles[profile.UserID.String()] = profile
	return nil
}

func (store *stubStore) UnpaidBalanceCents(ctx context.Context, userID UserID) (int64, error) {
	if store.balanceError != nil {
		return 0, store.balanceError
	}
	return store.balances[userID.String()], nil
}

func (store *stubStore) AppendComment(ctx context.Context, input CommentInput) error {
	if store.appendCommentError != nil {
		return store.appendCommentError
	}
	comment := Comment{
		ID:             store.nextCommentID,
		UserID:         input.UserID,
		Type:           input.Type,
		AuthorName:     input.AuthorName,
		Content:        input.Content,
		MetadataJSON:   input.MetadataJSON,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.nextCommentID++
	store.comments = append(store.comments, comment)
	return nil
}

func (store *stubStore) HasCommentSince(ctx context.Context, userID UserID, commentType CommentType, author AuthorName, sinceUnixUTC int64) (bool, error) {
	if store.hasCommentError != nil {
		return false, store.hasCommentError
	}
	for _, comment := range store.comments {
		if comment.UserID != userID || comment.Type != commentType || comment.AuthorName != author {
			continue
		}
		if comment.CreatedUnixUTC > sinceUnixUTC {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) LatestComment(ctx context.Context, userID UserID, commentType CommentType, author AuthorName) (*Comment, error) {
	if store.latestCommentError != nil {
		return nil, store.latestCommentError
	}
	var latest *Comment
	for index := range store.comments {
		comment := store.comments[index]
		if comment.UserID != userID || comment.Type != commentType || comment.AuthorName != author {
			continue
		}
		if latest == nil || commentNewer(comment, *latest) {
			candidate := comment
			latest = &candidate
		}
	}
	return latest, nil
}

func (store *stubStore) HasRiskStateCommentAfter(ctx context.Context, userID UserID, afterCommentID int64) (bool, error) {
	if store.hasRiskCommentError != nil {
		return false, store.hasRiskCommentError
	}
	for _, comment := range store.comments {
		if comment.UserID != userID || comment.ID <= afterCommentID {
			continue
		}
		for _, riskType := range RiskStateCommentTypes() {
			if comment.Type == riskType {
				return true, nil
			}
		}
	}
	return false, nil
}

func (store *stubStore) LatestTransitionTo(ctx context.Context, userID UserID, state RiskState) (*StateTransition, error) {
	if store.latestTransitionError != nil {
		return nil, store.latestTransitionError
	}
	var latest *StateTransition
	for index := range store.transitions {
		transition := store.transitions[index]
		if transition.UserID != userID || transition.ToState != state {
			continue
		}
		if latest == nil || transitionNewer(transition, *latest) {
			candidate := transition
			latest = &candidate
		}
	}
	return latest, nil
}

func (store *stubStore) AppendTransition(ctx context.Context, input TransitionInput) error {
	if store.appendTransitionError != nil {
		return store.appendTransitionError
	}
	transition := StateTransition{
		ID:             store.nextTransitionID,
		UserID:         input.UserID,
		FromState:      input.FromState,
		ToState:        input.ToState,
		AuthorName:     input.AuthorName,
		CreatedUnixUTC: input.CreatedUnixUTC,
	}
	store.nextTransitionID++
	store.transitions = append(store.transitions, transition)
	return nil
}

func commentNewer(left Comment, right Comment) bool {
	if left.CreatedUnixUTC != right.CreatedUnixUTC {
		return left.CreatedUnixUTC > right.CreatedUnixUTC
	}
	return left.ID > right.ID
}

func transitionNewer(left StateTransition, right StateTransition) bool {
	if left.CreatedUnixUTC != right.CreatedUnixUTC {
		return left.CreatedUnixUTC > right.CreatedUnixUTC
	}
	return left.ID > right.ID
}

type stubNotifier struct {
	notices []LowBalanceNotice
}

func (notifier *stubNotifier) NotifyLowBalance(ctx context.Context, notice LowBalanceNotice) {
	notifier.notices = append(notifier.notices, notice)
}

type stubReporter struct {
	messages []string
}

func (reporter *stubReporter) ReportAnomaly(ctx context.Context, message string) {
	reporter.messages = append(reporter.messages, message)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("new user id: %v", err)
	}
	return userID
}

func mustAuthorName(test *testing.T, raw string) AuthorName {
	test.Helper()
	author, err := NewAuthorName(raw)
	if err != nil {
		test.Fatalf("new author name: %v", err)
	}
	return author
}

func (store *stubStore) mustProfile(test *testing.T, userID UserID) Profile {
	test.Helper()
	profile, exists := store.profiles[userID.String()]
	if !exists {
		test.Fatalf("missing profile for %s", userID.String())
	}
	return profile
}

func (store *stubStore) commentsOfType(commentType CommentType) []Comment {
	var matched []Comment
	for _, comment := range store.comments {
		if comment.Type == commentType {
			matched = append(matched, comment)
		}
	}
	return matched
}
