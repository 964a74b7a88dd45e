package storage

import (
	"chatrelay/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mutation is an in-place change to a message sub-document.
type Mutation interface {
	// apply runs inside the transaction that located the message and reports
	// whether anything changed.
	apply(tx *gorm.DB, messageID string) (bool, error)
}

// ReactionMutation appends a reaction.
type ReactionMutation struct {
	User  string
	Label string
}

func (m ReactionMutation) apply(tx *gorm.DB, messageID string) (bool, error) {
	reaction := models.Reaction{MessageID: messageID, User: m.User, Type: m.Label}
	if err := tx.Create(&reaction).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ReadMutation adds a read marker. Adding an existing marker is a no-op.
type ReadMutation struct {
	User string
}

func (m ReadMutation) apply(tx *gorm.DB, messageID string) (bool, error) {
	marker := models.ReadMarker{MessageID: messageID, Username: m.User}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
