package store

import (
	"context"

	"github.com/selimgur/librarium/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InsertEmailLog records a verification email send attempt.
func (db *DB) InsertEmailLog(ctx context.Context, log *models.EmailLog) error {
	_, err := db.EmailLogs().InsertOne(ctx, log, options.InsertOne())
	return err
}
