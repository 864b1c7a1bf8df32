package store

import (
	"context"
	"errors"
	"time"

	"github.com/selimgur/librarium/models"
	"github.com/selimgur/librarium/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDueDateNotFuture guards loan creation at the store boundary too;
// the engine validates first, so seeing this means a caller bypassed it.
var ErrDueDateNotFuture = errors.New("due date must be strictly in the future")

// CreateLoan inserts a new active loan. The partial unique index on
// (book, user, status=borrowed) turns a duplicate-borrow race into a
// duplicate key error, reported as service.ErrDuplicateActiveLoan.
func (db *DB) CreateLoan(ctx context.Context, bookID, userID primitive.ObjectID, dueDate time.Time) (*models.Loan, error) {
	now := time.Now()
	if !dueDate.After(now) {
		return nil, ErrDueDateNotFuture
	}
	loan := &models.Loan{
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: now,
		ReturnDate: dueDate,
		Status:     models.StatusBorrowed,
		FineAmount: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res, err := db.Loans().InsertOne(ctx, loan)
	if mongo.IsDuplicateKeyError(err) {
		return nil, service.ErrDuplicateActiveLoan
	}
	if err != nil {
		return nil, err
	}
	loan.ID = res.InsertedID.(primitive.ObjectID)
	return loan, nil
}

// FindActiveLoan returns the outstanding loan for (book, user), or
// (nil, nil) when there is none.
func (db *DB) FindActiveLoan(ctx context.Context, bookID, userID primitive.ObjectID) (*models.Loan, error) {
	var loan models.Loan
	err := db.Loans().FindOne(ctx, bson.M{
		"book":   bookID,
		"user":   userID,
		"status": models.StatusBorrowed,
	}).Decode(&loan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// LoanForReturn fetches an active loan by id, optionally scoped to a
// borrower for the self-service path. (nil, nil) when nothing matches.
func (db *DB) LoanForReturn(ctx context.Context, loanID primitive.ObjectID, requester *primitive.ObjectID) (*models.Loan, error) {
	filter := bson.M{"_id": loanID, "status": models.StatusBorrowed}
	if requester != nil {
		filter["user"] = *requester
	}
	var loan models.Loan
	err := db.Loans().FindOne(ctx, filter).Decode(&loan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkReturned closes a loan. The status filter makes the transition
// one-shot: whichever concurrent return matches first wins, the other
// sees (nil, nil). Overdue vs returned is decided against dueDate,
// which is immutable once the loan exists.
func (db *DB) MarkReturned(ctx context.Context, loanID primitive.ObjectID, at, dueDate time.Time) (*models.Loan, error) {
	status := models.StatusReturned
	if at.After(dueDate) {
		status = models.StatusOverdue
	}
	var loan models.Loan
	err := db.Loans().FindOneAndUpdate(ctx,
		bson.M{"_id": loanID, "status": models.StatusBorrowed},
		bson.M{"$set": bson.M{
			"actualReturnDate": at,
			"status":           status,
			"updatedAt":        at,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&loan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// DeleteLoan removes a loan and returns the deleted record so the
// caller can tell whether it was still active. (nil, nil) when absent.
func (db *DB) DeleteLoan(ctx context.Context, loanID primitive.ObjectID) (*models.Loan, error) {
	var loan models.Loan
	err := db.Loans().FindOneAndDelete(ctx, bson.M{"_id": loanID}).Decode(&loan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// ListByUser returns a user's loans, newest borrow first, with book
// details joined.
func (db *DB) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.LoanDetail, error) {
	return db.loanDetails(ctx,
		bson.M{"user": userID},
		bson.D{{Key: "borrowDate", Value: -1}},
	)
}

// ListAll returns every loan, newest borrow first, with book and
// borrower joined.
func (db *DB) ListAll(ctx context.Context) ([]models.LoanDetail, error) {
	return db.loanDetails(ctx,
		bson.M{},
		bson.D{{Key: "borrowDate", Value: -1}},
	)
}

// ListOverdue returns active loans whose due date passed before asOf,
// most overdue first. Purely a read: status is not flipped here.
func (db *DB) ListOverdue(ctx context.Context, asOf time.Time) ([]models.LoanDetail, error) {
	return db.loanDetails(ctx,
		bson.M{
			"status":     models.StatusBorrowed,
			"returnDate": bson.M{"$lt": asOf},
		},
		bson.D{{Key: "returnDate", Value: 1}},
	)
}

func (db *DB) loanDetails(ctx context.Context, match bson.M, sort bson.D) ([]models.LoanDetail, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: sort}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "books",
			"localField":   "book",
			"foreignField": "_id",
			"as":           "bookDoc",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$bookDoc", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "user",
			"foreignField": "_id",
			"as":           "userDoc",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$userDoc", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"userDoc.password":               0,
			"userDoc.verificationCode":       0,
			"userDoc.verificationCodeExpire": 0,
		}}},
	}
	cur, err := db.Loans().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var loans []models.LoanDetail
	if err := cur.All(ctx, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}
