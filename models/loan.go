package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Loan status values. A loan starts as borrowed and transitions exactly
// once, at return time, to returned or overdue.
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

type Loan struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookID           primitive.ObjectID `bson:"book" json:"bookId"`
	UserID           primitive.ObjectID `bson:"user" json:"userId"`
	BorrowDate       time.Time          `bson:"borrowDate" json:"borrowDate"`
	ReturnDate       time.Time          `bson:"returnDate" json:"returnDate"` // due date
	ActualReturnDate *time.Time         `bson:"actualReturnDate,omitempty" json:"actualReturnDate,omitempty"`
	Status           string             `bson:"status" json:"status"`
	FineAmount       float64            `bson:"fineAmount" json:"fineAmount"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Active reports whether the loan is still outstanding.
func (l *Loan) Active() bool {
	return l.Status == StatusBorrowed
}

// LoanUser is the borrower projection joined onto list queries.
type LoanUser struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
}

// LoanDetail is a loan with its book and borrower joined for display.
type LoanDetail struct {
	Loan `bson:",inline"`
	Book *Book     `bson:"bookDoc,omitempty" json:"book,omitempty"`
	User *LoanUser `bson:"userDoc,omitempty" json:"user,omitempty"`
}
