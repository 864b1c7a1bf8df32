package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/selimgur/librarium/middleware"
	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeEngine struct {
	borrowResult *service.BorrowResult
	borrowErr    error
	returnResult *service.BorrowResult
	returnErr    error
	loans        []models.LoanDetail
	deleteErr    error

	gotBookID   primitive.ObjectID
	gotBorrower primitive.ObjectID
	gotDue      time.Time
	gotActing   service.ActingAs
}

func (f *fakeEngine) BorrowBook(_ context.Context, bookID, borrowerID primitive.ObjectID, dueDate time.Time, acting service.ActingAs) (*service.BorrowResult, error) {
	f.gotBookID, f.gotBorrower, f.gotDue, f.gotActing = bookID, borrowerID, dueDate, acting
	return f.borrowResult, f.borrowErr
}

func (f *fakeEngine) ReturnBook(_ context.Context, loanID, requesterID primitive.ObjectID, acting service.ActingAs) (*service.BorrowResult, error) {
	f.gotActing = acting
	return f.returnResult, f.returnErr
}

func (f *fakeEngine) ListMyLoans(context.Context, primitive.ObjectID) ([]models.LoanDetail, error) {
	return f.loans, nil
}

func (f *fakeEngine) ListAllLoans(context.Context) ([]models.LoanDetail, error) {
	return f.loans, nil
}

func (f *fakeEngine) ListOverdueLoans(context.Context, time.Time) ([]models.LoanDetail, error) {
	return f.loans, nil
}

func (f *fakeEngine) DeleteLoan(context.Context, primitive.ObjectID) error {
	return f.deleteErr
}

func authedRequest(method, target, body string, userID primitive.ObjectID) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestBorrow_Success(t *testing.T) {
	loan := &models.Loan{ID: primitive.NewObjectID(), Status: models.StatusBorrowed}
	eng := &fakeEngine{borrowResult: &service.BorrowResult{Loan: loan, AvailableCopies: 3}}
	h := &BorrowingsHandler{Engine: eng}

	bookID := primitive.NewObjectID()
	userID := primitive.NewObjectID()
	req := authedRequest(http.MethodPost, "/book/borrow",
		`{"bookId":"`+bookID.Hex()+`","returnDate":"2031-05-20"}`, userID)
	w := httptest.NewRecorder()
	h.Borrow(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["availableStock"])
	assert.Equal(t, bookID, eng.gotBookID)
	assert.Equal(t, userID, eng.gotBorrower, "self-service borrows for the caller")
	assert.False(t, eng.gotActing.Admin)
}

func TestBorrow_BadInput(t *testing.T) {
	h := &BorrowingsHandler{Engine: &fakeEngine{}}
	userID := primitive.NewObjectID()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing fields", `{"bookId":""}`},
		{"bad book id", `{"bookId":"nope","returnDate":"2031-05-20"}`},
		{"bad date", `{"bookId":"` + primitive.NewObjectID().Hex() + `","returnDate":"someday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Borrow(w, authedRequest(http.MethodPost, "/book/borrow", tt.body, userID))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, decodeBody(t, w)["success"])
		})
	}
}

func TestBorrow_EngineErrorsMapToStatus(t *testing.T) {
	userID := primitive.NewObjectID()
	body := `{"bookId":"` + primitive.NewObjectID().Hex() + `","returnDate":"2031-05-20"}`

	tests := []struct {
		err    error
		status int
	}{
		{service.E(service.KindInsufficientInventory, "no copies"), http.StatusBadRequest},
		{service.E(service.KindDuplicateLoan, "already borrowed"), http.StatusBadRequest},
		{service.E(service.KindNotFound, "book not found"), http.StatusNotFound},
		{service.Wrap(service.KindInternal, "boom", assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := &BorrowingsHandler{Engine: &fakeEngine{borrowErr: tt.err}}
		w := httptest.NewRecorder()
		h.Borrow(w, authedRequest(http.MethodPost, "/book/borrow", body, userID))
		assert.Equal(t, tt.status, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["success"])
	}
}

func TestAdminBorrow_TargetsGivenUser(t *testing.T) {
	loan := &models.Loan{ID: primitive.NewObjectID(), Status: models.StatusBorrowed}
	eng := &fakeEngine{borrowResult: &service.BorrowResult{Loan: loan, AvailableCopies: 0}}
	h := &BorrowingsHandler{Engine: eng}

	borrower := primitive.NewObjectID()
	admin := primitive.NewObjectID()
	body := `{"bookId":"` + primitive.NewObjectID().Hex() + `","userId":"` + borrower.Hex() + `","returnDate":"2031-05-20T00:00:00Z"}`
	w := httptest.NewRecorder()
	h.AdminBorrow(w, authedRequest(http.MethodPost, "/admin/borrow", body, admin))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, borrower, eng.gotBorrower)
	assert.True(t, eng.gotActing.Admin)
}

func TestReturn_ActingScope(t *testing.T) {
	loan := &models.Loan{ID: primitive.NewObjectID(), Status: models.StatusReturned}
	body := `{"borrowingId":"` + loan.ID.Hex() + `"}`
	userID := primitive.NewObjectID()

	eng := &fakeEngine{returnResult: &service.BorrowResult{Loan: loan, AvailableCopies: 1}}
	h := &BorrowingsHandler{Engine: eng}

	w := httptest.NewRecorder()
	h.Return(w, authedRequest(http.MethodPost, "/book/return", body, userID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, eng.gotActing.Admin)

	w = httptest.NewRecorder()
	h.AdminReturn(w, authedRequest(http.MethodPost, "/admin/return", body, userID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, eng.gotActing.Admin)
}

func TestMyLoans(t *testing.T) {
	eng := &fakeEngine{loans: []models.LoanDetail{
		{Loan: models.Loan{ID: primitive.NewObjectID(), Status: models.StatusBorrowed}},
		{Loan: models.Loan{ID: primitive.NewObjectID(), Status: models.StatusReturned}},
	}}
	h := &BorrowingsHandler{Engine: eng}

	w := httptest.NewRecorder()
	h.MyLoans(w, authedRequest(http.MethodGet, "/me/borrowed-books", "", primitive.NewObjectID()))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])
}

func TestDeleteLoan_NotFound(t *testing.T) {
	eng := &fakeEngine{deleteErr: service.E(service.KindNotFound, "borrowing record not found")}
	h := &BorrowingsHandler{Engine: eng}

	r := chi.NewRouter()
	r.Delete("/admin/borrowing/{id}", h.DeleteLoan)
	req := httptest.NewRequest(http.MethodDelete, "/admin/borrowing/"+primitive.NewObjectID().Hex(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])
}
