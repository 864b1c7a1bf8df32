package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmailLog records a verification email sent to a registering user.
type EmailLog struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ToEmail string             `bson:"toEmail" json:"toEmail"`
	Subject string             `bson:"subject" json:"subject"`
	Status  string             `bson:"status" json:"status"` // "sent" or "failed"
	Error   string             `bson:"error,omitempty" json:"error,omitempty"`
	SentAt  time.Time          `bson:"sentAt" json:"sentAt"`
}
