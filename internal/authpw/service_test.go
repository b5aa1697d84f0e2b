package authpw

import (
	"context"
	"errors"
	"testing"

	"almanac/internal/store"
)

type fakeUserStore struct {
	byEmail map[string]store.User
	byID    map[string]store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: map[string]store.User{}, byID: map[string]store.User{}}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, u store.User) error {
	f.byEmail[u.Email] = u
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	u := f.byID[userID]
	u.PasswordHash = hash
	f.byID[userID] = u
	f.byEmail[u.Email] = u
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "password1", DisplayName: "Alex"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.ID == "" {
		t.Fatal("sign up must assign an id")
	}
	if user.PasswordHash == "password1" {
		t.Fatal("password stored in the clear")
	}

	signedIn, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signedIn.ID != user.ID {
		t.Fatalf("signed in as %q, want %q", signedIn.ID, user.ID)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "wrong"}); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "password1"}); err == nil {
		t.Fatal("unknown email accepted")
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "", Password: "password1", DisplayName: "A"}); err == nil {
		t.Fatal("empty email accepted")
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "short", DisplayName: "A"}); err == nil {
		t.Fatal("short password accepted")
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "password1", DisplayName: "A"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "password2", DisplayName: "B"}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate email error = %v, want ErrEmailExists", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "password1", DisplayName: "Alex"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "password2"); err == nil {
		t.Fatal("wrong current password accepted")
	}
	if err := svc.ChangePassword(ctx, user.ID, "password1", "short"); err == nil {
		t.Fatal("short new password accepted")
	}
	if err := svc.ChangePassword(ctx, user.ID, "password1", "password2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "password2"}); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@example.com", Password: "password1"}); err == nil {
		t.Fatal("old password still accepted")
	}
}
