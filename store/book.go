package store

import (
	"context"
	"errors"
	"time"

	"github.com/selimgur/librarium/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrBookOnLoan blocks deleting a book while copies are still out.
var ErrBookOnLoan = errors.New("book has copies out on loan")

// ErrStockBelowBorrowed blocks lowering stock under the borrowed count.
var ErrStockBelowBorrowed = errors.New("stock cannot be lower than the borrowed count")

func (db *DB) InsertBook(ctx context.Context, book *models.Book) (primitive.ObjectID, error) {
	res, err := db.Books().InsertOne(ctx, book, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) AllBooks(ctx context.Context) ([]models.Book, error) {
	cur, err := db.Books().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var books []models.Book
	if err := cur.All(ctx, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// BookByID returns (nil, nil) when the book does not exist.
func (db *DB) BookByID(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOne(ctx, bson.M{"_id": id}).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// AdjustBorrowedCount moves borrowedCount by delta, holding the
// 0 <= borrowedCount <= stock invariant inside a single conditional
// update so concurrent borrows of the last copy cannot both pass.
// Returns (nil, nil) when the condition rejects the adjustment (or the
// book is gone).
func (db *DB) AdjustBorrowedCount(ctx context.Context, id primitive.ObjectID, delta int) (*models.Book, error) {
	filter := bson.M{"_id": id}
	switch {
	case delta > 0:
		filter["$expr"] = bson.M{"$lte": bson.A{
			bson.M{"$add": bson.A{"$borrowedCount", delta}},
			"$stock",
		}}
	case delta < 0:
		filter["borrowedCount"] = bson.M{"$gte": -delta}
	default:
		return db.BookByID(ctx, id)
	}
	update := bson.M{
		"$inc": bson.M{"borrowedCount": delta},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	var book models.Book
	err := db.Books().FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// UpdateBookFields updates metadata fields by ID. Stock and
// borrowedCount are deliberately not settable here; stock changes go
// through SetStock and borrowedCount only moves via AdjustBorrowedCount.
func (db *DB) UpdateBookFields(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Book, error) {
	delete(fields, "stock")
	delete(fields, "borrowedCount")
	fields["updatedAt"] = time.Now()
	var book models.Book
	err := db.Books().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// SetStock changes total stock, refusing values below the current
// borrowed count. The guard sits in the update filter so a concurrent
// borrow cannot slip between check and write.
func (db *DB) SetStock(ctx context.Context, id primitive.ObjectID, newStock int) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "borrowedCount": bson.M{"$lte": newStock}},
		bson.M{"$set": bson.M{"stock": newStock, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Distinguish missing book from a rejected stock level.
		existing, lookErr := db.BookByID(ctx, id)
		if lookErr != nil {
			return nil, lookErr
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrStockBelowBorrowed
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// DeleteBook removes a book, refusing while copies are on loan. The
// guard is part of the delete filter, mutually exclusive with the
// conditional borrow increment on the same document.
func (db *DB) DeleteBook(ctx context.Context, id primitive.ObjectID) (*models.Book, error) {
	var book models.Book
	err := db.Books().FindOneAndDelete(ctx,
		bson.M{"_id": id, "borrowedCount": 0},
	).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, lookErr := db.BookByID(ctx, id)
		if lookErr != nil {
			return nil, lookErr
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrBookOnLoan
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}
