package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role constants for user authorization.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var ValidRoles = []string{RoleAdmin, RoleUser}

type User struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                   string             `bson:"name" json:"name"`
	Email                  string             `bson:"email" json:"email"`
	Password               string             `bson:"password" json:"-"` // bcrypt hash
	Role                   string             `bson:"role" json:"role"`
	AccountVerified        bool               `bson:"accountVerified" json:"accountVerified"`
	VerificationCode       string             `bson:"verificationCode,omitempty" json:"-"`
	VerificationCodeExpire time.Time          `bson:"verificationCodeExpire,omitempty" json:"-"`
	CreatedAt              time.Time          `bson:"createdAt" json:"createdAt"`
}
