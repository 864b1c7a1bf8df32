package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type UsersHandler struct {
	DB *store.DB
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

func roleValid(role string) bool {
	for _, r := range models.ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// List returns all verified users. Admin only. GET /admin/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.DB.ListVerifiedUsers(r.Context())
	if err != nil {
		log.Printf("list users: %v", err)
		fail(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Update changes a user's name, password or role. Admin only.
// PUT /admin/user/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}

	var hashed *string
	if req.Password != nil {
		if len(*req.Password) < 8 || len(*req.Password) > 16 {
			fail(w, http.StatusBadRequest, "password must be between 8 and 16 characters")
			return
		}
		h, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("update user: hash: %v", err)
			fail(w, http.StatusInternalServerError, "failed to update user")
			return
		}
		s := string(h)
		hashed = &s
	}
	if req.Role != nil {
		role := strings.TrimSpace(strings.ToLower(*req.Role))
		if !roleValid(role) {
			fail(w, http.StatusBadRequest, "invalid role; use user or admin")
			return
		}
		req.Role = &role
	}

	user, err := h.DB.UserByID(r.Context(), id)
	if err != nil {
		log.Printf("update user: %v", err)
		fail(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	if user == nil {
		fail(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.DB.UpdateUser(r.Context(), id, req.Name, hashed, req.Role); err != nil {
		log.Printf("update user: %v", err)
		fail(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "user updated successfully"})
}

// Delete removes a user account. Admin only; admins cannot delete
// themselves. DELETE /admin/user/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if self, _ := middleware.UserIDFromContext(r.Context()); self == id {
		fail(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}
	user, err := h.DB.UserByID(r.Context(), id)
	if err != nil {
		log.Printf("delete user: %v", err)
		fail(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if user == nil {
		fail(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.DB.DeleteUser(r.Context(), id); err != nil {
		log.Printf("delete user: %v", err)
		fail(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "user deleted successfully"})
}
