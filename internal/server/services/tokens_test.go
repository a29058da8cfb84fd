package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func newTokenService(t *testing.T, repo *fakeTokensRepo, c clock.Clock) *TokenService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })
	return NewTokenService(db, &fakeRepoManager{t: repo}, 0, c, logging.Nop())
}

func TestIssue_PersistsTokenWithExpiry(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := newFakeTokensRepo()
	s := newTokenService(t, repo, clock.Fake(start))

	tok, err := s.Issue(context.Background(), "alice@example.com", "register")
	require.NoError(t, err)
	assert.Regexp(t, hex32, tok)

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	assert.Equal(t, "alice@example.com", row.Email)
	assert.Equal(t, "register", row.Action)
	assert.Equal(t, start, row.CreatedAt)
	assert.Equal(t, start.Add(24*time.Hour), row.ExpiresAt)
}

func TestIssue_IndependentRows(t *testing.T) {
	repo := newFakeTokensRepo()
	s := newTokenService(t, repo, clock.Real())

	t1, err := s.Issue(context.Background(), "a@example.com", "register")
	require.NoError(t, err)
	t2, err := s.Issue(context.Background(), "a@example.com", "register")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.Len(t, repo.rows, 2)
}

func TestIssue_UnknownAction(t *testing.T) {
	s := newTokenService(t, newFakeTokensRepo(), clock.Real())

	_, err := s.Issue(context.Background(), "a@example.com", "launch")
	assert.ErrorIs(t, err, common.ErrUnknownAction)
}

func TestRedeem_ReplayableUntilExpiry(t *testing.T) {
	fc := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s := newTokenService(t, newFakeTokensRepo(), fc)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "bob@example.com", "update_email")
	require.NoError(t, err)

	assert.NoError(t, s.Redeem(ctx, tok, "bob@example.com", "update_email"))
	assert.NoError(t, s.Redeem(ctx, tok, "bob@example.com", "update_email"))

	fc.Advance(24*time.Hour + time.Second)
	assert.ErrorIs(t, s.Redeem(ctx, tok, "bob@example.com", "update_email"), common.ErrTokenExpired)
}

func TestRedeem_Errors(t *testing.T) {
	fc := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s := newTokenService(t, newFakeTokensRepo(), fc)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "bob@example.com", "update_email")
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		email  string
		action string
		want   error
	}{
		{"unknown token", "ffffffffffffffffffffffffffffffff", "bob@example.com", "update_email", common.ErrTokenNotFound},
		{"other email", tok, "eve@example.com", "update_email", common.ErrTokenNotFound},
		{"email is case sensitive", tok, "Bob@example.com", "update_email", common.ErrTokenNotFound},
		{"wrong action", tok, "bob@example.com", "register", common.ErrTokenMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Redeem(ctx, tt.token, tt.email, tt.action), tt.want)
		})
	}
}

func TestRedeem_MismatchCheckedBeforeExpiry(t *testing.T) {
	fc := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	s := newTokenService(t, newFakeTokensRepo(), fc)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "bob@example.com", "update_email")
	require.NoError(t, err)

	fc.Advance(48 * time.Hour)
	assert.ErrorIs(t, s.Redeem(ctx, tok, "bob@example.com", "register"), common.ErrTokenMismatch)
}

func TestRedeem_RepoError(t *testing.T) {
	repo := newFakeTokensRepo()
	repo.err = errBoom{}
	s := newTokenService(t, repo, clock.Real())

	err := s.Redeem(context.Background(), "t", "e", "register")
	assert.ErrorIs(t, err, errBoom{})
}
