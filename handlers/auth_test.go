package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/selimgur/librarium/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccounts struct {
	byEmail *models.User
	pending *models.User

	touchedID     primitive.ObjectID
	touchedCode   string
	touchedExpire time.Time
}

func (f *fakeAccounts) UserByEmail(context.Context, string) (*models.User, error) {
	return f.byEmail, nil
}

func (f *fakeAccounts) VerifiedUserByEmail(context.Context, string) (*models.User, error) {
	if f.byEmail != nil && f.byEmail.AccountVerified {
		return f.byEmail, nil
	}
	return nil, nil
}

func (f *fakeAccounts) PendingRegistrations(context.Context, string) (int64, error) {
	if f.pending != nil {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeAccounts) PendingUserByEmail(context.Context, string) (*models.User, error) {
	return f.pending, nil
}

func (f *fakeAccounts) PendingUserByCode(context.Context, string, string) (*models.User, error) {
	return f.pending, nil
}

func (f *fakeAccounts) CreateUser(context.Context, *models.User) (primitive.ObjectID, error) {
	return primitive.NewObjectID(), nil
}

func (f *fakeAccounts) UserByID(context.Context, primitive.ObjectID) (*models.User, error) {
	return f.byEmail, nil
}

func (f *fakeAccounts) MarkVerified(context.Context, primitive.ObjectID) error { return nil }

func (f *fakeAccounts) DeleteUser(context.Context, primitive.ObjectID) error { return nil }

func (f *fakeAccounts) DeleteExpiredPending(context.Context, primitive.ObjectID) error { return nil }

func (f *fakeAccounts) TouchVerificationCode(_ context.Context, id primitive.ObjectID, code string, expire time.Time) error {
	f.touchedID, f.touchedCode, f.touchedExpire = id, code, expire
	return nil
}

type fakeSender struct {
	to   string
	code string
	err  error
}

func (f *fakeSender) SendVerificationCode(_ context.Context, to, code string) error {
	f.to, f.code = to, code
	return f.err
}

func newAuthHandler(accounts *fakeAccounts, sender *fakeSender) *AuthHandler {
	return &AuthHandler{
		DB:        accounts,
		Mailer:    sender,
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}
}

func hashedPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLogin_Success(t *testing.T) {
	user := &models.User{
		ID:              primitive.NewObjectID(),
		Email:           "reader@example.com",
		Password:        hashedPassword(t, "sekrit-pass"),
		Role:            models.RoleUser,
		AccountVerified: true,
	}
	h := newAuthHandler(&fakeAccounts{byEmail: user}, &fakeSender{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"reader@example.com","password":"sekrit-pass"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "token cookie")
	assert.True(t, cookie.HttpOnly)
}

func TestLogin_UnverifiedAccountForbidden(t *testing.T) {
	user := &models.User{
		ID:              primitive.NewObjectID(),
		Email:           "pending@example.com",
		Password:        hashedPassword(t, "sekrit-pass"),
		AccountVerified: false,
	}
	h := newAuthHandler(&fakeAccounts{byEmail: user, pending: user}, &fakeSender{})

	// The right password must not matter: verification is checked first.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"pending@example.com","password":"sekrit-pass"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "not verified")
}

func TestLogin_UnknownEmail(t *testing.T) {
	h := newAuthHandler(&fakeAccounts{}, &fakeSender{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"whatever1"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid email or password", decodeBody(t, w)["message"])
}

func TestLogin_WrongPassword(t *testing.T) {
	user := &models.User{
		ID:              primitive.NewObjectID(),
		Email:           "reader@example.com",
		Password:        hashedPassword(t, "sekrit-pass"),
		AccountVerified: true,
	}
	h := newAuthHandler(&fakeAccounts{byEmail: user}, &fakeSender{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"reader@example.com","password":"wrong-pass"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid email or password", decodeBody(t, w)["message"])
}

func TestResendOTP_IssuesFreshCode(t *testing.T) {
	pending := &models.User{
		ID:               primitive.NewObjectID(),
		Email:            "pending@example.com",
		VerificationCode: "12345",
	}
	accounts := &fakeAccounts{pending: pending}
	sender := &fakeSender{}
	h := newAuthHandler(accounts, sender)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/resend-otp",
		strings.NewReader(`{"email":"pending@example.com"}`))
	w := httptest.NewRecorder()
	h.ResendOTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pending.ID, accounts.touchedID)
	assert.Regexp(t, `^[1-9][0-9]{4}$`, accounts.touchedCode)
	assert.Equal(t, accounts.touchedCode, sender.code, "emailed code matches the stored one")
	assert.Equal(t, "pending@example.com", sender.to)
	assert.WithinDuration(t, time.Now().Add(otpTTL), accounts.touchedExpire, time.Minute)
}

func TestResendOTP_NoPendingRegistration(t *testing.T) {
	sender := &fakeSender{}
	h := newAuthHandler(&fakeAccounts{}, sender)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/resend-otp",
		strings.NewReader(`{"email":"nobody@example.com"}`))
	w := httptest.NewRecorder()
	h.ResendOTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sender.code, "nothing sent")
}
