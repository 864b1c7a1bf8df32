package service

import (
	"context"
	"errors"
	"time"

	"github.com/selimgur/librarium/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrDuplicateActiveLoan is returned by LoanStore.CreateLoan when the
// borrower already holds an active loan for the same book. The Mongo
// store maps its unique partial index violation to this sentinel.
var ErrDuplicateActiveLoan = errors.New("active loan already exists for this book and user")

// CatalogStore is the book inventory as the borrowing engine sees it.
// Lookups return (nil, nil) when no document matches; AdjustBorrowedCount
// applies its bounds check and the increment as one atomic operation and
// returns (nil, nil) when the check fails.
type CatalogStore interface {
	BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error)
	AdjustBorrowedCount(ctx context.Context, id primitive.ObjectID, delta int) (*models.Book, error)
}

// LoanStore owns borrowing records.
type LoanStore interface {
	// CreateLoan inserts a new active loan. Returns ErrDuplicateActiveLoan
	// when an active loan for (bookID, userID) already exists.
	CreateLoan(ctx context.Context, bookID, userID primitive.ObjectID, dueDate time.Time) (*models.Loan, error)
	// FindActiveLoan returns the outstanding loan for (bookID, userID),
	// or (nil, nil) when there is none.
	FindActiveLoan(ctx context.Context, bookID, userID primitive.ObjectID) (*models.Loan, error)
	// LoanForReturn fetches an active loan by id. When requester is
	// non-nil the lookup is scoped to that borrower. (nil, nil) when no
	// matching active loan exists.
	LoanForReturn(ctx context.Context, loanID primitive.ObjectID, requester *primitive.ObjectID) (*models.Loan, error)
	// MarkReturned sets actualReturnDate and flips status to returned or
	// overdue depending on whether at is past dueDate. One-shot: returns
	// (nil, nil) if the loan is no longer active.
	MarkReturned(ctx context.Context, loanID primitive.ObjectID, at, dueDate time.Time) (*models.Loan, error)
	// DeleteLoan removes a loan and returns the deleted record, or
	// (nil, nil) when it did not exist.
	DeleteLoan(ctx context.Context, loanID primitive.ObjectID) (*models.Loan, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.LoanDetail, error)
	ListAll(ctx context.Context) ([]models.LoanDetail, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error)
}

// UserDirectory resolves borrower identities for admin-initiated loans.
// Authentication itself lives in the middleware; the engine only needs
// existence checks.
type UserDirectory interface {
	UserExists(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// ActingAs says on whose authority an operation runs. Checked once at
// the engine boundary: admins may target any loan and borrow on behalf
// of other users, self-service callers only their own records.
type ActingAs struct {
	Admin bool
}

var (
	ActingSelf  = ActingAs{}
	ActingAdmin = ActingAs{Admin: true}
)

// BorrowResult is what borrow and return hand back to the adapter.
type BorrowResult struct {
	Loan            *models.Loan
	AvailableCopies int
}

// BorrowingEngine keeps book stock and loan records mutually
// consistent. All mutations of borrowedCount and loan status go through
// here.
type BorrowingEngine struct {
	catalog CatalogStore
	loans   LoanStore
	users   UserDirectory

	now func() time.Time // injectable for tests
}

func NewBorrowingEngine(catalog CatalogStore, loans LoanStore, users UserDirectory) *BorrowingEngine {
	return &BorrowingEngine{
		catalog: catalog,
		loans:   loans,
		users:   users,
		now:     time.Now,
	}
}

// BorrowBook creates a loan for borrowerID on bookID, due at dueDate.
// Self-service callers pass their own id; admins may pass any user's id
// with acting = ActingAdmin.
//
// The commit order is: insert the loan, then conditionally increment
// borrowedCount. The loans collection's unique partial index closes the
// duplicate-loan race; a failed increment rolls the loan back, so two
// concurrent borrows of the last copy cannot both succeed.
func (e *BorrowingEngine) BorrowBook(ctx context.Context, bookID, borrowerID primitive.ObjectID, dueDate time.Time, acting ActingAs) (*BorrowResult, error) {
	if !dueDate.After(e.now()) {
		return nil, E(KindInvalidArgument, "return date must be in the future")
	}

	book, err := e.catalog.BookByID(ctx, bookID)
	if err != nil {
		return nil, Wrap(KindInternal, "load book", err)
	}
	if book == nil {
		return nil, E(KindNotFound, "book not found")
	}
	if book.AvailableCopies() <= 0 {
		return nil, E(KindInsufficientInventory, "no copies of this book are currently available")
	}

	if acting.Admin {
		exists, err := e.users.UserExists(ctx, borrowerID)
		if err != nil {
			return nil, Wrap(KindInternal, "look up borrower", err)
		}
		if !exists {
			return nil, E(KindNotFound, "user not found")
		}
	}

	active, err := e.loans.FindActiveLoan(ctx, bookID, borrowerID)
	if err != nil {
		return nil, Wrap(KindInternal, "check active loan", err)
	}
	if active != nil {
		return nil, E(KindDuplicateLoan, "this book is already borrowed by the user; return it first")
	}

	loan, err := e.loans.CreateLoan(ctx, bookID, borrowerID, dueDate)
	if err != nil {
		if errors.Is(err, ErrDuplicateActiveLoan) {
			return nil, E(KindDuplicateLoan, "this book is already borrowed by the user; return it first")
		}
		return nil, Wrap(KindInternal, "create loan", err)
	}

	updated, err := e.catalog.AdjustBorrowedCount(ctx, bookID, +1)
	if err != nil {
		e.rollbackLoan(ctx, loan.ID)
		return nil, Wrap(KindInternal, "reserve copy", err)
	}
	if updated == nil {
		// Lost the race for the last copy. The loan must not outlive it.
		e.rollbackLoan(ctx, loan.ID)
		return nil, E(KindInsufficientInventory, "no copies of this book are currently available")
	}

	return &BorrowResult{Loan: loan, AvailableCopies: updated.AvailableCopies()}, nil
}

func (e *BorrowingEngine) rollbackLoan(ctx context.Context, loanID primitive.ObjectID) {
	// Best effort; a leftover loan without a reserved copy would violate
	// the inventory invariant, so deletion failures are surfaced loudly
	// by the caller's error either way.
	_, _ = e.loans.DeleteLoan(ctx, loanID)
}

// ReturnBook closes an active loan and releases its copy. Self-service
// callers can only return their own loans; admins any loan. The
// returned-vs-overdue decision compares the return moment to the due
// date; fineAmount is not computed here.
func (e *BorrowingEngine) ReturnBook(ctx context.Context, loanID, requesterID primitive.ObjectID, acting ActingAs) (*BorrowResult, error) {
	var scope *primitive.ObjectID
	if !acting.Admin {
		scope = &requesterID
	}

	loan, err := e.loans.LoanForReturn(ctx, loanID, scope)
	if err != nil {
		return nil, Wrap(KindInternal, "load loan", err)
	}
	if loan == nil {
		return nil, E(KindNotFound, "no active borrowing record found, or it was already returned")
	}

	book, err := e.catalog.BookByID(ctx, loan.BookID)
	if err != nil {
		return nil, Wrap(KindInternal, "load book", err)
	}
	if book == nil {
		return nil, E(KindDataIntegrity, "the borrowed book no longer exists; please contact an administrator")
	}

	updated, err := e.loans.MarkReturned(ctx, loan.ID, e.now(), loan.ReturnDate)
	if err != nil {
		return nil, Wrap(KindInternal, "mark returned", err)
	}
	if updated == nil {
		return nil, E(KindConflict, "this loan was already returned")
	}

	after, err := e.catalog.AdjustBorrowedCount(ctx, loan.BookID, -1)
	if err != nil {
		return nil, Wrap(KindInternal, "release copy", err)
	}
	if after == nil {
		return nil, E(KindDataIntegrity, "book inventory is inconsistent; please contact an administrator")
	}

	return &BorrowResult{Loan: updated, AvailableCopies: after.AvailableCopies()}, nil
}

// ListMyLoans returns the caller's loans, newest borrow first.
func (e *BorrowingEngine) ListMyLoans(ctx context.Context, userID primitive.ObjectID) ([]models.LoanDetail, error) {
	loans, err := e.loans.ListByUser(ctx, userID)
	if err != nil {
		return nil, Wrap(KindInternal, "list loans", err)
	}
	return loans, nil
}

// ListAllLoans returns every loan, newest borrow first.
func (e *BorrowingEngine) ListAllLoans(ctx context.Context) ([]models.LoanDetail, error) {
	loans, err := e.loans.ListAll(ctx)
	if err != nil {
		return nil, Wrap(KindInternal, "list loans", err)
	}
	return loans, nil
}

// ListOverdueLoans returns still-outstanding loans whose due date has
// passed, most overdue first. It does not mutate loan status: overdue
// is only materialized when a loan is actually returned.
func (e *BorrowingEngine) ListOverdueLoans(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}
	loans, err := e.loans.ListOverdue(ctx, asOf)
	if err != nil {
		return nil, Wrap(KindInternal, "list overdue loans", err)
	}
	return loans, nil
}

// DeleteLoan hard-deletes a loan record. Deleting a still-active loan
// also releases its reserved copy, so borrowedCount cannot drift.
func (e *BorrowingEngine) DeleteLoan(ctx context.Context, loanID primitive.ObjectID) error {
	deleted, err := e.loans.DeleteLoan(ctx, loanID)
	if err != nil {
		return Wrap(KindInternal, "delete loan", err)
	}
	if deleted == nil {
		return E(KindNotFound, "borrowing record not found")
	}
	if deleted.Active() {
		if _, err := e.catalog.AdjustBorrowedCount(ctx, deleted.BookID, -1); err != nil {
			return Wrap(KindInternal, "release copy", err)
		}
	}
	return nil
}
