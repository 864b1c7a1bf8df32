package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpTTL                  = 15 * time.Minute
	maxRegistrationAttempts = 5
)

// AccountStore is the slice of the user store the auth endpoints use.
type AccountStore interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	VerifiedUserByEmail(ctx context.Context, email string) (*models.User, error)
	PendingRegistrations(ctx context.Context, email string) (int64, error)
	PendingUserByEmail(ctx context.Context, email string) (*models.User, error)
	PendingUserByCode(ctx context.Context, email, code string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (primitive.ObjectID, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID) error
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	DeleteExpiredPending(ctx context.Context, id primitive.ObjectID) error
	TouchVerificationCode(ctx context.Context, id primitive.ObjectID, code string, expire time.Time) error
}

// CodeSender delivers verification codes to accounts being registered.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

type AuthHandler struct {
	DB        AccountStore
	Mailer    CodeSender
	JWTSecret string
	TokenTTL  time.Duration
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOtpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an unverified account and emails a verification
// code. The account only becomes usable after VerifyOTP.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if !utils.ValidEmail(req.Email) {
		fail(w, http.StatusBadRequest, "enter a valid email address")
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 16 {
		fail(w, http.StatusBadRequest, "password must be between 8 and 16 characters")
		return
	}

	existing, err := h.DB.VerifiedUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("register: %v", err)
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if existing != nil {
		fail(w, http.StatusBadRequest, "this email is already registered")
		return
	}
	attempts, err := h.DB.PendingRegistrations(r.Context(), req.Email)
	if err != nil {
		log.Printf("register: %v", err)
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if attempts >= maxRegistrationAttempts {
		fail(w, http.StatusBadRequest, "too many registration attempts; please contact support")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("register: hash: %v", err)
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}
	code, err := utils.GenerateOTP()
	if err != nil {
		log.Printf("register: otp: %v", err)
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := &models.User{
		Name:                   req.Name,
		Email:                  req.Email,
		Password:               string(hash),
		Role:                   models.RoleUser,
		AccountVerified:        false,
		VerificationCode:       code,
		VerificationCodeExpire: time.Now().Add(otpTTL),
		CreatedAt:              time.Now(),
	}
	id, err := h.DB.CreateUser(r.Context(), user)
	if err != nil {
		log.Printf("register: create user: %v", err)
		fail(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if err := h.Mailer.SendVerificationCode(r.Context(), req.Email, code); err != nil {
		log.Printf("register: send otp: %v", err)
		// Do not leave an unverifiable account behind.
		if delErr := h.DB.DeleteUser(r.Context(), id); delErr != nil {
			log.Printf("register: cleanup user: %v", delErr)
		}
		fail(w, http.StatusInternalServerError, "could not send the verification code; please try again later")
		return
	}

	ok(w, http.StatusOK, map[string]any{
		"message": "registered successfully; a verification code was sent to your email",
	})
}

// VerifyOTP activates a pending account. An expired code removes the
// pending registration so the user can start over.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		fail(w, http.StatusBadRequest, "email and verification code are required")
		return
	}
	if !utils.ValidEmail(req.Email) {
		fail(w, http.StatusBadRequest, "enter a valid email address")
		return
	}

	user, err := h.DB.PendingUserByCode(r.Context(), req.Email, req.OTP)
	if err != nil {
		log.Printf("verify otp: %v", err)
		fail(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if user == nil {
		fail(w, http.StatusBadRequest, "invalid verification code or email")
		return
	}
	if user.VerificationCodeExpire.IsZero() || time.Now().After(user.VerificationCodeExpire) {
		if err := h.DB.DeleteExpiredPending(r.Context(), user.ID); err != nil {
			log.Printf("verify otp: cleanup expired: %v", err)
		}
		fail(w, http.StatusBadRequest, "the verification code expired; please register again")
		return
	}

	if err := h.DB.MarkVerified(r.Context(), user.ID); err != nil {
		log.Printf("verify otp: %v", err)
		fail(w, http.StatusInternalServerError, "verification failed")
		return
	}
	user.AccountVerified = true
	h.sendToken(w, user, "your account was verified and activated")
}

// ResendOTP issues a fresh verification code for a pending
// registration and emails it. The previous code stops working.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !utils.ValidEmail(req.Email) {
		fail(w, http.StatusBadRequest, "enter a valid email address")
		return
	}

	user, err := h.DB.PendingUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("resend otp: %v", err)
		fail(w, http.StatusInternalServerError, "could not resend the verification code")
		return
	}
	if user == nil {
		fail(w, http.StatusBadRequest, "no pending registration found for this email")
		return
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		log.Printf("resend otp: %v", err)
		fail(w, http.StatusInternalServerError, "could not resend the verification code")
		return
	}
	if err := h.DB.TouchVerificationCode(r.Context(), user.ID, code, time.Now().Add(otpTTL)); err != nil {
		log.Printf("resend otp: %v", err)
		fail(w, http.StatusInternalServerError, "could not resend the verification code")
		return
	}
	if err := h.Mailer.SendVerificationCode(r.Context(), req.Email, code); err != nil {
		log.Printf("resend otp: send: %v", err)
		fail(w, http.StatusInternalServerError, "could not send the verification code; please try again later")
		return
	}

	ok(w, http.StatusOK, map[string]any{
		"message": "a new verification code was sent to your email",
	})
}

// Login authenticates a verified account.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		fail(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.DB.UserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("login: %v", err)
		fail(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil {
		fail(w, http.StatusBadRequest, "invalid email or password")
		return
	}
	if !user.AccountVerified {
		fail(w, http.StatusForbidden, "your account is not verified; please use the verification code sent to your email")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		fail(w, http.StatusBadRequest, "invalid email or password")
		return
	}
	h.sendToken(w, user, "logged in successfully")
}

// Logout clears the token cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	ok(w, http.StatusOK, map[string]any{"message": "logged out successfully"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ansOK := middleware.UserIDFromContext(r.Context())
	if !ansOK {
		fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.DB.UserByID(r.Context(), userID)
	if err != nil {
		log.Printf("me: %v", err)
		fail(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		fail(w, http.StatusNotFound, "user not found")
		return
	}
	ok(w, http.StatusOK, map[string]any{"user": user})
}

// sendToken issues a JWT, sets it as an httpOnly cookie and also
// returns it in the body for API clients.
func (h *AuthHandler) sendToken(w http.ResponseWriter, user *models.User, message string) {
	claims := &middleware.Claims{
		UserID: user.ID.Hex(),
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.JWTSecret))
	if err != nil {
		log.Printf("sign token: %v", err)
		fail(w, http.StatusInternalServerError, "could not create token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.TokenTTL),
		HttpOnly: true,
	})
	ok(w, http.StatusOK, map[string]any{
		"message": message,
		"token":   token,
		"user":    user,
	})
}
