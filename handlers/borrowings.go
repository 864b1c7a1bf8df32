package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/service"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BorrowingService is what the borrowing routes need from the engine.
type BorrowingService interface {
	BorrowBook(ctx context.Context, bookID, borrowerID primitive.ObjectID, dueDate time.Time, acting service.ActingAs) (*service.BorrowResult, error)
	ReturnBook(ctx context.Context, loanID, requesterID primitive.ObjectID, acting service.ActingAs) (*service.BorrowResult, error)
	ListMyLoans(ctx context.Context, userID primitive.ObjectID) ([]models.LoanDetail, error)
	ListAllLoans(ctx context.Context) ([]models.LoanDetail, error)
	ListOverdueLoans(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error)
	DeleteLoan(ctx context.Context, loanID primitive.ObjectID) error
}

type BorrowingsHandler struct {
	Engine BorrowingService
}

type borrowRequest struct {
	BookID     string `json:"bookId"`
	UserID     string `json:"userId,omitempty"` // admin borrow on behalf of
	ReturnDate string `json:"returnDate"`
}

type returnRequest struct {
	BorrowingID string `json:"borrowingId"`
}

// parseDueDate accepts RFC 3339 or a bare YYYY-MM-DD date.
func parseDueDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Borrow lets the authenticated user borrow a book. POST /book/borrow.
func (h *BorrowingsHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	userID, ansOK := middleware.UserIDFromContext(r.Context())
	if !ansOK {
		fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.BookID == "" || req.ReturnDate == "" {
		fail(w, http.StatusBadRequest, "bookId and returnDate are required")
		return
	}
	bookID, err := primitive.ObjectIDFromHex(req.BookID)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	dueDate, valid := parseDueDate(req.ReturnDate)
	if !valid {
		fail(w, http.StatusBadRequest, "enter a valid return date (e.g. YYYY-MM-DD)")
		return
	}

	res, err := h.Engine.BorrowBook(r.Context(), bookID, userID, dueDate, service.ActingSelf)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message":        "book borrowed successfully",
		"borrowing":      res.Loan,
		"availableStock": res.AvailableCopies,
	})
}

// AdminBorrow borrows a book on behalf of another user. POST /admin/borrow.
func (h *BorrowingsHandler) AdminBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.BookID == "" || req.UserID == "" || req.ReturnDate == "" {
		fail(w, http.StatusBadRequest, "bookId, userId and returnDate are required")
		return
	}
	bookID, err := primitive.ObjectIDFromHex(req.BookID)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid book id")
		return
	}
	borrowerID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	dueDate, valid := parseDueDate(req.ReturnDate)
	if !valid {
		fail(w, http.StatusBadRequest, "enter a valid return date (e.g. YYYY-MM-DD)")
		return
	}

	res, err := h.Engine.BorrowBook(r.Context(), bookID, borrowerID, dueDate, service.ActingAdmin)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message":        "book borrowed successfully",
		"borrowing":      res.Loan,
		"availableStock": res.AvailableCopies,
	})
}

// Return closes the caller's own loan. POST /book/return.
func (h *BorrowingsHandler) Return(w http.ResponseWriter, r *http.Request) {
	userID, ansOK := middleware.UserIDFromContext(r.Context())
	if !ansOK {
		fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loanID, done := h.decodeReturn(w, r)
	if done {
		return
	}
	res, err := h.Engine.ReturnBook(r.Context(), loanID, userID, service.ActingSelf)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message":        "book returned successfully",
		"borrowing":      res.Loan,
		"availableStock": res.AvailableCopies,
	})
}

// AdminReturn closes any loan. POST /admin/return.
func (h *BorrowingsHandler) AdminReturn(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	loanID, done := h.decodeReturn(w, r)
	if done {
		return
	}
	res, err := h.Engine.ReturnBook(r.Context(), loanID, userID, service.ActingAdmin)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message":        "book returned successfully",
		"borrowing":      res.Loan,
		"availableStock": res.AvailableCopies,
	})
}

func (h *BorrowingsHandler) decodeReturn(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid json")
		return primitive.NilObjectID, true
	}
	if req.BorrowingID == "" {
		fail(w, http.StatusBadRequest, "borrowingId is required")
		return primitive.NilObjectID, true
	}
	loanID, err := primitive.ObjectIDFromHex(req.BorrowingID)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid borrowing id")
		return primitive.NilObjectID, true
	}
	return loanID, false
}

// MyLoans lists the caller's borrowings, newest first. GET /me/borrowed-books.
func (h *BorrowingsHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	userID, ansOK := middleware.UserIDFromContext(r.Context())
	if !ansOK {
		fail(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loans, err := h.Engine.ListMyLoans(r.Context(), userID)
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"borrowedBooks": loans,
		"count":         len(loans),
	})
}

// AllLoans lists every borrowing record. GET /admin/borrowings.
func (h *BorrowingsHandler) AllLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Engine.ListAllLoans(r.Context())
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"borrowings": loans,
		"count":      len(loans),
	})
}

// OverdueLoans lists outstanding loans past their due date, most
// overdue first. GET /admin/overdue-books.
func (h *BorrowingsHandler) OverdueLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Engine.ListOverdueLoans(r.Context(), time.Now())
	if err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"overdueBooks": loans,
		"count":        len(loans),
	})
}

// DeleteLoan hard-deletes a borrowing record. DELETE /admin/borrowing/{id}.
func (h *BorrowingsHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid borrowing id")
		return
	}
	if err := h.Engine.DeleteLoan(r.Context(), loanID); err != nil {
		failErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{
		"message": "borrowing record deleted successfully",
	})
}
