package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	actionsrepo "github.com/dmitrijs2005/accounts/internal/server/repositories/actions"
	tokensrepo "github.com/dmitrijs2005/accounts/internal/server/repositories/tokens"
	usersrepo "github.com/dmitrijs2005/accounts/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// fakeTokensRepo keeps token rows in memory and resolves the seeded actions.
type fakeTokensRepo struct {
	mu      sync.Mutex
	rows    []models.TokenWithAction
	actions map[string]int64
	err     error
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{actions: map[string]int64{"register": 1, "update_email": 2}}
}

func (f *fakeTokensRepo) Create(_ context.Context, t *models.Token, action string) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.actions[action]
	if !ok {
		return nil, common.ErrUnknownAction
	}
	t.ID = int64(len(f.rows) + 1)
	t.ActionID = id
	f.rows = append(f.rows, models.TokenWithAction{Token: *t, Action: action})
	return t, nil
}

func (f *fakeTokensRepo) FindWithAction(_ context.Context, token, email string) (*models.TokenWithAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for i := len(f.rows) - 1; i >= 0; i-- {
		r := f.rows[i]
		if r.Token.Token == token && r.Email == email {
			return &r, nil
		}
	}
	return nil, common.ErrorNotFound
}

// fakeUsersRepo is an in-memory users table.
type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[int64]*models.User
	nextID int64
	err    error
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[int64]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
		if u.ID > f.nextID {
			f.nextID = u.ID
		}
	}
	return f
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrDuplicateEmail
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) find(pred func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byID {
		if pred(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	if err == common.ErrorNotFound {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsersRepo) update(id int64, match func(*models.User) bool, apply func(*models.User), at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	u, ok := f.byID[id]
	if !ok || !match(u) {
		return false, nil
	}
	apply(u)
	u.UpdatedAt = &at
	return true, nil
}

func (f *fakeUsersRepo) UpdateUsername(_ context.Context, id int64, current, username string, at time.Time) (bool, error) {
	return f.update(id, func(u *models.User) bool { return u.UserName == current },
		func(u *models.User) { u.UserName = username }, at)
}

func (f *fakeUsersRepo) UpdateEmail(_ context.Context, id int64, current, email string, at time.Time) (bool, error) {
	return f.update(id, func(u *models.User) bool { return u.Email == current },
		func(u *models.User) { u.Email = email }, at)
}

func (f *fakeUsersRepo) UpdatePassword(_ context.Context, id int64, password string, at time.Time) (bool, error) {
	return f.update(id, func(*models.User) bool { return true },
		func(u *models.User) { u.Password = password }, at)
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTokensRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Tokens(db dbx.DBTX) tokensrepo.Repository     { return m.t }
func (m *fakeRepoManager) Actions(db dbx.DBTX) actionsrepo.Repository   { return nil }

// fakePublisher records published messages.
type fakePublisher struct {
	mu       sync.Mutex
	err      error
	messages []publishedMessage
}

type publishedMessage struct {
	queue   string
	message any
	action  string
}

func (p *fakePublisher) Publish(_ context.Context, queue string, message any, action string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{queue: queue, message: message, action: action})
	return nil
}

type fakeAccess struct{ err error }

func (a fakeAccess) Create(userID int64) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "access-token", nil
}
