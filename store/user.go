package store

import (
	"context"
	"time"

	"github.com/selimgur/librarium/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VerifiedUserByEmail looks up a verified account. (nil, nil) when none.
func (db *DB) VerifiedUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, bson.M{"email": email, "accountVerified": true}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByEmail looks up an account regardless of verification state.
// The verified account wins when pending signups share the email, and
// the newest pending signup otherwise. (nil, nil) when none.
func (db *DB) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx,
		bson.M{"email": email},
		options.FindOne().SetSort(bson.D{{Key: "accountVerified", Value: -1}, {Key: "createdAt", Value: -1}}),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PendingRegistrations counts unverified signups for an email.
func (db *DB) PendingRegistrations(ctx context.Context, email string) (int64, error) {
	return db.Users().CountDocuments(ctx, bson.M{"email": email, "accountVerified": false})
}

// PendingUserByEmail returns the newest unverified signup for an email,
// or (nil, nil) when there is none.
func (db *DB) PendingUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx,
		bson.M{"email": email, "accountVerified": false},
		options.FindOne().SetSort(bson.M{"createdAt": -1}),
	).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PendingUserByCode finds an unverified account matching email and OTP.
// (nil, nil) when the code or email is wrong.
func (db *DB) PendingUserByCode(ctx context.Context, email, code string) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, bson.M{
		"email":            email,
		"verificationCode": code,
		"accountVerified":  false,
	}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) (primitive.ObjectID, error) {
	res, err := db.Users().InsertOne(ctx, user, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists satisfies service.UserDirectory; only verified accounts
// count as borrowers.
func (db *DB) UserExists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := db.Users().CountDocuments(ctx, bson.M{"_id": id, "accountVerified": true})
	return n > 0, err
}

// MarkVerified flips an account to verified and clears the OTP fields.
func (db *DB) MarkVerified(ctx context.Context, id primitive.ObjectID) error {
	_, err := db.Users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"accountVerified": true},
		"$unset": bson.M{"verificationCode": "", "verificationCodeExpire": ""},
	})
	return err
}

// ListVerifiedUsers returns verified accounts, oldest first.
func (db *DB) ListVerifiedUsers(ctx context.Context) ([]models.User, error) {
	cur, err := db.Users().Find(ctx,
		bson.M{"accountVerified": true},
		options.Find().SetSort(bson.M{"createdAt": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (db *DB) UpdateUser(ctx context.Context, id primitive.ObjectID, name *string, hashedPassword *string, role *string) error {
	updates := bson.M{}
	if name != nil {
		updates["name"] = *name
	}
	if hashedPassword != nil {
		updates["password"] = *hashedPassword
	}
	if role != nil {
		updates["role"] = *role
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := db.Users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": updates})
	return err
}

func (db *DB) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	_, err := db.Users().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteExpiredPending removes an unverified signup whose code expired.
func (db *DB) DeleteExpiredPending(ctx context.Context, id primitive.ObjectID) error {
	_, err := db.Users().DeleteOne(ctx, bson.M{"_id": id, "accountVerified": false})
	return err
}

// TouchVerificationCode sets a fresh OTP and expiry on a pending user.
func (db *DB) TouchVerificationCode(ctx context.Context, id primitive.ObjectID, code string, expire time.Time) error {
	_, err := db.Users().UpdateOne(ctx, bson.M{"_id": id, "accountVerified": false}, bson.M{
		"$set": bson.M{"verificationCode": code, "verificationCodeExpire": expire},
	})
	return err
}
