package access

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
)

// MockRangeReader is a mock implementation of RangeReader
type MockRangeReader struct {
	mock.Mock
}

func (m *MockRangeReader) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	args := m.Called(ctx, spreadsheetID, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]any), args.Error(1)
}

// MockProfileFetcher is a mock implementation of ProfileFetcher
type MockProfileFetcher struct {
	mock.Mock
}

func (m *MockProfileFetcher) UserInfo(ctx context.Context) (google.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(google.Profile), args.Error(1)
}

type recorder struct{ decisions []string }

func (r *recorder) RecordAccessDecision(_ context.Context, d string) { r.decisions = append(r.decisions, d) }

const spreadsheetID = "sheet-123456"

func newChecker(reader RangeReader, profiles ProfileFetcher) *Checker {
	store := config.NewStore(config.Config{SpreadsheetID: spreadsheetID})
	return NewChecker(store, reader, profiles, nil)
}

func TestValidateUserAccess(t *testing.T) {
	allowList := [][]any{{"a@x.com"}, {"B@X.com"}, {"  grandma@example.com  "}, {}, {""}}

	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{name: "exact match", email: "a@x.com", want: true},
		{name: "case insensitive", email: "b@x.com", want: true},
		{name: "input is trimmed and lowercased", email: "  A@X.COM ", want: true},
		{name: "list entry is trimmed", email: "grandma@example.com", want: true},
		{name: "not on list", email: "c@x.com", want: false},
		{name: "empty email never matches empty cells", email: "", want: false},
		{name: "whitespace email never matches", email: "   ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockRangeReader)
			reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return(allowList, nil)

			got, err := newChecker(reader, nil).ValidateUserAccess(context.Background(), tt.email)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			reader.AssertExpectations(t)
		})
	}
}

func TestValidateUserAccess_FlattensAllColumns(t *testing.T) {
	reader := new(MockRangeReader)
	reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return([][]any{{"first@x.com", "second@x.com"}}, nil)

	got, err := newChecker(reader, nil).ValidateUserAccess(context.Background(), "second@x.com")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestValidateUserAccess_EmptyListFailsClosed(t *testing.T) {
	reader := new(MockRangeReader)
	reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return([][]any{}, nil)
	rec := &recorder{}
	c := newChecker(reader, nil)
	c.SetRecorder(rec)

	got, err := c.ValidateUserAccess(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, []string{DecisionEmptyList}, rec.decisions)
}

func TestValidateUserAccess_ReadErrorIsNotDeny(t *testing.T) {
	readErr := &googleapi.Error{Code: http.StatusNotFound, Message: "Unable to parse range: Login!A:A"}
	reader := new(MockRangeReader)
	reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return(nil, readErr)
	rec := &recorder{}
	c := newChecker(reader, nil)
	c.SetRecorder(rec)

	got, err := c.ValidateUserAccess(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.False(t, got)
	assert.ErrorIs(t, err, ErrVerificationUnavailable)
	assert.True(t, google.IsNotFound(err), "underlying API error is preserved")
	assert.Equal(t, []string{DecisionUnavailable}, rec.decisions)
}

func TestGetUserProfile(t *testing.T) {
	profiles := new(MockProfileFetcher)
	profiles.On("UserInfo", mock.Anything).Return(google.Profile{"email": "a@x.com", "sub": "1"}, nil)

	profile, err := newChecker(nil, profiles).GetUserProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, google.Profile{"email": "a@x.com", "sub": "1"}, profile)
}

func TestGetUserProfile_ErrorPropagatesUnchanged(t *testing.T) {
	fetchErr := errors.New("token expired")
	profiles := new(MockProfileFetcher)
	profiles.On("UserInfo", mock.Anything).Return(nil, fetchErr)

	_, err := newChecker(nil, profiles).GetUserProfile(context.Background())
	assert.Same(t, fetchErr, err)
}

func TestGate(t *testing.T) {
	tests := []struct {
		name    string
		profile google.Profile
		rows    [][]any
		readErr error
		wantErr error
	}{
		{name: "allowed", profile: google.Profile{"email": "A@x.com"}, rows: [][]any{{"a@x.com"}}},
		{name: "denied", profile: google.Profile{"email": "c@x.com"}, rows: [][]any{{"a@x.com"}}, wantErr: ErrAccessDenied},
		{name: "empty list denies", profile: google.Profile{"email": "a@x.com"}, rows: [][]any{}, wantErr: ErrAccessDenied},
		{name: "no email", profile: google.Profile{"sub": "1"}, wantErr: ErrNoEmail},
		{name: "unavailable", profile: google.Profile{"email": "a@x.com"}, readErr: errors.New("network down"), wantErr: ErrVerificationUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := new(MockProfileFetcher)
			profiles.On("UserInfo", mock.Anything).Return(tt.profile, nil)
			reader := new(MockRangeReader)
			if tt.readErr != nil {
				reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return(nil, tt.readErr)
			} else {
				reader.On("ReadRange", mock.Anything, spreadsheetID, "Login!A:A").Return(tt.rows, nil)
			}

			profile, err := newChecker(reader, profiles).Gate(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.profile, profile)
		})
	}
}
