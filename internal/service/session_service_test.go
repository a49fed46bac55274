package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/kv"
	"rate-my-movie/internal/repository"
)

type flakyStore struct {
	*kv.Memory
	getErr error

	// setErr sólo aplica a setErrKey.
	setErr    error
	setErrKey string
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil && key == f.setErrKey {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) Allow(string) bool {
	d.calls++
	return false
}

func (d *denyLimiter) Fail(string)  {}
func (d *denyLimiter) Reset(string) {}

type testEnv struct {
	store   *flakyStore
	users   *repository.KVUserRepository
	ratings *repository.KVRatedMovieRepository
	session *SessionService
}

func newTestEnv(t *testing.T, limiter SignInLimiter) *testEnv {
	t.Helper()
	store := &flakyStore{Memory: kv.NewMemory()}
	return newTestEnvWithStore(t, store, limiter)
}

func newTestEnvWithStore(t *testing.T, store *flakyStore, limiter SignInLimiter) *testEnv {
	t.Helper()
	users := repository.NewKVUserRepository(zap.NewNop(), store)
	ratings := repository.NewKVRatedMovieRepository(zap.NewNop(), store)
	svc := NewSessionService(zap.NewNop(), users, NewSessionState(), NewBcryptHasher(bcrypt.MinCost), ratings, limiter)
	return &testEnv{store: store, users: users, ratings: ratings, session: svc}
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestSessionService_RequiresStart(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.session.SignIn(ctx, "a@x.com", "pw"); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}
	if _, err := env.session.SignUp(ctx, SignUpInput{Email: "a@x.com", Password: "pw"}); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}
	if err := env.session.SignOut(ctx, nil); !errors.Is(err, ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}
	if got := env.session.State().Snapshot().Status; got != StatusUninitialized {
		t.Fatalf("expected uninitialized, got %s", got)
	}
}

func TestSessionService_SignUpSignInCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	ctx := context.Background()

	ok, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "Ada@X.com", Password: "pw1"})
	if err != nil || !ok {
		t.Fatalf("expected sign up true,nil; got %v,%v", ok, err)
	}
	user := env.session.State().CurrentUser()
	if user == nil || user.Email != "Ada@X.com" || user.ID == "" {
		t.Fatalf("expected Ada to be signed in, got %+v", user)
	}
	if user.PasswordHash == "pw1" || user.PasswordHash == "" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}

	ok, err = env.session.SignUp(ctx, SignUpInput{Name: "Other", Email: "ada@x.com", Password: "pw2"})
	if err != nil || ok {
		t.Fatalf("expected duplicate sign up false,nil; got %v,%v", ok, err)
	}

	if err := env.session.SignOut(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	ok, err = env.session.SignIn(ctx, "ADA@X.COM", "pw1")
	if err != nil || !ok {
		t.Fatalf("expected sign in true,nil; got %v,%v", ok, err)
	}
	user = env.session.State().CurrentUser()
	if user == nil || user.Email != "Ada@X.com" || user.Name != "Ada" {
		t.Fatalf("expected stored casing to be kept, got %+v", user)
	}
}

func TestSessionService_SignInMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := env.session.SignOut(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "ada@x.com", "nope"},
		{"unknown email", "bob@x.com", "pw1"},
		{"blank", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := env.session.SignIn(ctx, tc.email, tc.password)
			if err != nil || ok {
				t.Fatalf("expected false,nil; got %v,%v", ok, err)
			}
			if env.session.State().Snapshot().Authenticated() {
				t.Fatalf("expected to stay anonymous")
			}
		})
	}
}

func TestSessionService_SignOutKeepsAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	called := false
	err := env.session.SignOut(ctx, func() {
		called = true
		current, err := env.users.GetCurrentUser(ctx)
		if err != nil || current == nil {
			t.Errorf("expected session pointer while callback runs, got %+v,%v", current, err)
		}
	})
	if err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if !called {
		t.Fatalf("expected onSignOut to run")
	}
	if current, _ := env.users.GetCurrentUser(ctx); current != nil {
		t.Fatalf("expected session pointer cleared, got %+v", current)
	}
	if account, _ := env.users.GetUserByEmail(ctx, "ada@x.com"); account == nil {
		t.Fatalf("expected account to persist after sign out")
	}
	if got := env.session.State().Snapshot().Status; got != StatusAnonymous {
		t.Fatalf("expected anonymous, got %s", got)
	}
}

func TestSessionService_StartRestoresSession(t *testing.T) {
	store := &flakyStore{Memory: kv.NewMemory()}
	first := newTestEnvWithStore(t, store, nil)
	first.start(t)
	if _, err := first.session.SignUp(context.Background(), SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw1"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	second := newTestEnvWithStore(t, store, nil)
	second.start(t)
	snap := second.session.State().Snapshot()
	if !snap.Authenticated() || snap.User.Email != "ada@x.com" || snap.Loading {
		t.Fatalf("expected restored session, got %+v", snap)
	}
}

func TestSessionService_StartWithNullSessionIsAnonymous(t *testing.T) {
	store := &flakyStore{Memory: kv.NewMemory()}
	_ = store.Memory.Set(context.Background(), "rate_my_movie:session", "null")
	env := newTestEnvWithStore(t, store, nil)
	env.start(t)

	if snap := env.session.State().Snapshot(); snap.Status != StatusAnonymous || snap.User != nil {
		t.Fatalf("expected anonymous session, got %+v", snap)
	}
}

func TestSessionService_StartReadFailureIsAnonymous(t *testing.T) {
	store := &flakyStore{Memory: kv.NewMemory(), getErr: fmt.Errorf("%w: disk gone", kv.ErrUnavailable)}
	env := newTestEnvWithStore(t, store, nil)
	env.start(t)

	snap := env.session.State().Snapshot()
	if snap.Status != StatusAnonymous || snap.Loading || snap.User != nil {
		t.Fatalf("expected anonymous without loading, got %+v", snap)
	}
}

func TestSessionService_DifferentUserRequiresSignOut(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Bob", Email: "bob@x.com", Password: "pw"}); err != nil {
		t.Fatalf("sign up bob: %v", err)
	}
	if err := env.session.SignOut(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
		t.Fatalf("sign up ada: %v", err)
	}

	if _, err := env.session.SignIn(ctx, "bob@x.com", "pw"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if _, err := env.session.SignUp(ctx, SignUpInput{Email: "carol@x.com", Password: "pw"}); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	ok, err := env.session.SignIn(ctx, "ADA@x.com", "pw")
	if err != nil || !ok {
		t.Fatalf("expected re-sign-in as same user, got %v,%v", ok, err)
	}
}

func TestSessionService_RateLimited(t *testing.T) {
	limiter := &denyLimiter{}
	env := newTestEnv(t, limiter)
	env.start(t)

	ok, err := env.session.SignIn(context.Background(), "ada@x.com", "pw")
	if ok || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v,%v", ok, err)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected limiter consulted once, got %d", limiter.calls)
	}
}

func TestSessionService_SuccessfulSignInsNotLimited(t *testing.T) {
	env := newTestEnv(t, NewSignInLimiter(10*time.Minute, 5))
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	for i := 1; i <= 6; i++ {
		if err := env.session.SignOut(ctx, nil); err != nil {
			t.Fatalf("sign out #%d: %v", i, err)
		}
		ok, err := env.session.SignIn(ctx, "ada@x.com", "pw")
		if err != nil || !ok {
			t.Fatalf("sign in #%d: expected true,nil; got %v,%v", i, ok, err)
		}
	}
}

func TestSessionService_FailedSignInsAreLimited(t *testing.T) {
	env := newTestEnv(t, NewSignInLimiter(10*time.Minute, 3))
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := env.session.SignOut(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	// un acceso correcto reinicia el conteo.
	for i := 0; i < 2; i++ {
		if ok, err := env.session.SignIn(ctx, "ada@x.com", "wrong"); ok || err != nil {
			t.Fatalf("expected false,nil for wrong password; got %v,%v", ok, err)
		}
	}
	if ok, err := env.session.SignIn(ctx, "ada@x.com", "pw"); !ok || err != nil {
		t.Fatalf("expected sign in true,nil; got %v,%v", ok, err)
	}
	if err := env.session.SignOut(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	for i := 0; i < 3; i++ {
		if ok, err := env.session.SignIn(ctx, "ADA@x.com", "wrong"); ok || err != nil {
			t.Fatalf("attempt #%d: expected false,nil; got %v,%v", i+1, ok, err)
		}
	}
	if ok, err := env.session.SignIn(ctx, "ada@x.com", "pw"); ok || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after failures, got %v,%v", ok, err)
	}
}

func TestSessionService_SignUpValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.start(t)
	ctx := context.Background()

	if _, err := env.session.SignUp(ctx, SignUpInput{Email: "  ", Password: "pw"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := env.session.SignUp(ctx, SignUpInput{Email: "a@x.com"}); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestSessionService_UpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("requires authentication", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.start(t)
		name := "X"
		if err := env.session.UpdateProfile(ctx, domain.UserUpdate{Name: &name}); !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("publishes committed value", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.start(t)
		if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
			t.Fatalf("sign up: %v", err)
		}
		name := "  Ada L.  "
		pic := "file:///ada.png"
		if err := env.session.UpdateProfile(ctx, domain.UserUpdate{Name: &name, ProfilePicture: &pic}); err != nil {
			t.Fatalf("update: %v", err)
		}
		user := env.session.State().CurrentUser()
		if user.Name != "Ada L." || user.ProfilePicture == nil || *user.ProfilePicture != pic {
			t.Fatalf("unexpected user after update: %+v", user)
		}
		stored, _ := env.users.GetUserByEmail(ctx, "ada@x.com")
		if stored == nil || stored.Name != "Ada L." {
			t.Fatalf("expected registered account updated, got %+v", stored)
		}
	})

	t.Run("email change moves ratings", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.start(t)
		if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
			t.Fatalf("sign up: %v", err)
		}
		rated := domain.RatedMovie{Movie: domain.Movie{ID: 7, Title: "Se7en"}, UserRating: 9, RatedAt: time.Now(), UserEmail: "ada@x.com"}
		if err := env.ratings.AddRatedMovie(ctx, rated); err != nil {
			t.Fatalf("add rating: %v", err)
		}

		email := "ada@y.com"
		if err := env.session.UpdateProfile(ctx, domain.UserUpdate{Email: &email}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := env.session.State().CurrentUser().Email; got != email {
			t.Fatalf("expected new email published, got %s", got)
		}
		if ok, _ := env.ratings.IsMovieRated(ctx, email, 7); !ok {
			t.Fatalf("expected rating to follow the new email")
		}
		if ok, _ := env.ratings.IsMovieRated(ctx, "ada@x.com", 7); ok {
			t.Fatalf("expected old email to own nothing")
		}
		if old, _ := env.users.GetUserByEmail(ctx, "ada@x.com"); old != nil {
			t.Fatalf("expected no duplicate account under the old email")
		}
	})

	t.Run("failed rating move restores old email", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.start(t)
		if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
			t.Fatalf("sign up: %v", err)
		}
		rated := domain.RatedMovie{Movie: domain.Movie{ID: 7, Title: "Se7en"}, UserRating: 9, RatedAt: time.Now(), UserEmail: "ada@x.com"}
		if err := env.ratings.AddRatedMovie(ctx, rated); err != nil {
			t.Fatalf("add rating: %v", err)
		}

		env.store.setErrKey = "rate_my_movie:rated_movies"
		env.store.setErr = fmt.Errorf("%w: disk full", kv.ErrUnavailable)
		name := "Ada L."
		email := "ada@y.com"
		update := domain.UserUpdate{Name: &name, Email: &email}
		if err := env.session.UpdateProfile(ctx, update); !errors.Is(err, kv.ErrUnavailable) {
			t.Fatalf("expected store failure, got %v", err)
		}
		user := env.session.State().CurrentUser()
		if user == nil || user.Email != "ada@x.com" || user.Name != "Ada" {
			t.Fatalf("expected previous profile published, got %+v", user)
		}
		if stored, _ := env.users.GetUserByEmail(ctx, "ada@x.com"); stored == nil || stored.Name != "Ada" {
			t.Fatalf("expected account kept under the old email, got %+v", stored)
		}
		if moved, _ := env.users.GetUserByEmail(ctx, email); moved != nil {
			t.Fatalf("expected no account under the new email, got %+v", moved)
		}
		if current, _ := env.users.GetCurrentUser(ctx); current == nil || current.Email != "ada@x.com" {
			t.Fatalf("expected session pointer restored, got %+v", current)
		}

		env.store.setErr = nil
		if err := env.session.UpdateProfile(ctx, update); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if ok, _ := env.ratings.IsMovieRated(ctx, email, 7); !ok {
			t.Fatalf("expected rating under the new email after retry")
		}
		if ok, _ := env.ratings.IsMovieRated(ctx, "ada@x.com", 7); ok {
			t.Fatalf("expected old email to own nothing after retry")
		}
	})

	t.Run("email taken by another account", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.start(t)
		if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Bob", Email: "bob@x.com", Password: "pw"}); err != nil {
			t.Fatalf("sign up bob: %v", err)
		}
		if err := env.session.SignOut(ctx, nil); err != nil {
			t.Fatalf("sign out: %v", err)
		}
		if _, err := env.session.SignUp(ctx, SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
			t.Fatalf("sign up ada: %v", err)
		}
		email := "BOB@x.com"
		if err := env.session.UpdateProfile(ctx, domain.UserUpdate{Email: &email}); !errors.Is(err, repository.ErrDuplicateUser) {
			t.Fatalf("expected ErrDuplicateUser, got %v", err)
		}
		if got := env.session.State().CurrentUser().Email; got != "ada@x.com" {
			t.Fatalf("expected session unchanged, got %s", got)
		}
	})
}

func TestSessionService_SubscribersSeeTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	ch, cancel := env.session.State().Subscribe()
	defer cancel()

	if snap := <-ch; snap.Status != StatusUninitialized {
		t.Fatalf("expected initial uninitialized snapshot, got %s", snap.Status)
	}
	env.start(t)
	if snap := <-ch; snap.Status != StatusAnonymous || snap.Loading {
		t.Fatalf("expected anonymous after start, got %+v", snap)
	}
	if _, err := env.session.SignUp(context.Background(), SignUpInput{Name: "Ada", Email: "ada@x.com", Password: "pw"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	snap := <-ch
	if !snap.Authenticated() || snap.User.Email != "ada@x.com" {
		t.Fatalf("expected authenticated snapshot, got %+v", snap)
	}
}
