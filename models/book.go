package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultCoverURL is used when a book is created without an image.
const DefaultCoverURL = "https://myersedpress.presswarehouse.com/publishers/default_cover.png"

type Book struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title           string             `bson:"title" json:"title"`
	Author          string             `bson:"author" json:"author"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	Genre           string             `bson:"genre" json:"genre"`
	Price           float64            `bson:"price" json:"price"`
	PublicationYear int                `bson:"publicationYear" json:"publicationYear"`
	Stock           int                `bson:"stock" json:"stock"`
	BorrowedCount   int                `bson:"borrowedCount" json:"borrowedCount"`
	ImageURL        string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	ImageS3Key      string             `bson:"imageS3Key,omitempty" json:"-"` // object key in S3 when the cover was uploaded by us
	AddedBy         primitive.ObjectID `bson:"addedBy" json:"addedBy"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// AvailableCopies is stock minus the copies currently out on loan.
func (b *Book) AvailableCopies() int {
	return b.Stock - b.BorrowedCount
}
