package storage

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is the message and user repository used by the relay.
type Storage interface {
	UpsertOnlineUser(ctx context.Context, username, connectionID string) error
	MarkUserOffline(ctx context.Context, username string, at time.Time) error
	ListPresence(ctx context.Context) ([]models.Presence, error)
	FindUser(ctx context.Context, username string) (*models.User, error)
	ResetPresence(ctx context.Context, at time.Time) (int64, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	FetchRecent(ctx context.Context, room string, limit int) ([]models.Message, error)
	FetchPage(ctx context.Context, room string, page, pageSize int) ([]models.Message, error)
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	Mutate(ctx context.Context, id string, m Mutation) (*models.Message, bool, error)
}

type Service struct {
	DB     *gorm.DB
	Cache  RecentCache
	logger *slog.Logger
}

// NewStorageService Constructor. cache may be nil.
func NewStorageService(db *gorm.DB, cache RecentCache, logger *slog.Logger) *Service {
	return &Service{
		DB:     db,
		Cache:  cache,
		logger: logger,
	}
}

// Migrate creates or updates the relay tables.
func (s *Service) Migrate() error {
	return persistence("migrate", s.DB.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.Reaction{},
		&models.ReadMarker{},
	))
}

// UpsertOnlineUser records username as online on connectionID.
func (s *Service) UpsertOnlineUser(ctx context.Context, username, connectionID string) error {
	user := models.User{Username: username, ConnectionID: connectionID, Online: true}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"connection_id", "online", "updated_at"}),
	}).Create(&user).Error
	return persistence("upsert user", err)
}

// MarkUserOffline flips username offline and stamps last-seen.
func (s *Service) MarkUserOffline(ctx context.Context, username string, at time.Time) error {
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Updates(map[string]interface{}{
			"online":        false,
			"last_seen":     at,
			"connection_id": "",
		}).Error
	return persistence("mark user offline", err)
}

// ListPresence returns every known participant ordered by name.
func (s *Service) ListPresence(ctx context.Context) ([]models.Presence, error) {
	presence := []models.Presence{}
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Select("username", "online", "last_seen").
		Order("username asc").
		Scan(&presence).Error
	if err != nil {
		return nil, persistence("list presence", err)
	}
	return presence, nil
}

func (s *Service) FindUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("find user", err)
	}
	return &user, nil
}

// ResetPresence marks every online user offline. It repairs records left
// online by a process that did not shut down cleanly.
func (s *Service) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("online = ?", true).
		Updates(map[string]interface{}{
			"online":        false,
			"last_seen":     at,
			"connection_id": "",
		})
	if result.Error != nil {
		return 0, persistence("reset presence", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateMessage persists msg and fills its ID and CreatedAt.
func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.Type == "" {
		msg.Type = models.KindText
	}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		s.logger.Error("failed to save message", "room", msg.Room, "error", err)
		return persistence("create message", err)
	}
	msg.Hydrate()
	s.invalidate(ctx, msg.Room)
	return nil
}

// FetchRecent returns the last limit messages of room, oldest first.
func (s *Service) FetchRecent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = config.RecentMessagesLimit
	}

	var version int64
	if s.Cache != nil {
		msgs, v, hit, err := s.Cache.Recent(ctx, room, limit)
		switch {
		case err != nil:
			s.logger.Warn("recent cache read failed", "room", room, "error", err)
		case hit:
			return msgs, nil
		default:
			version = v
		}
	}

	msgs, err := s.latest(ctx, room, 0, limit)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.StoreRecent(ctx, room, limit, version, msgs); err != nil {
			s.logger.Warn("recent cache write failed", "room", room, "error", err)
		}
	}
	return msgs, nil
}

// FetchPage returns page (1 = newest) of room's history in chronological
// order. pageSize is clamped to [1, MaxPageSize].
func (s *Service) FetchPage(ctx context.Context, room string, page, pageSize int) ([]models.Message, error) {
	page, pageSize = ClampPage(page, pageSize)
	return s.latest(ctx, room, (page-1)*pageSize, pageSize)
}

// ClampPage normalizes pagination input.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	if pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}
	return page, pageSize
}

func (s *Service) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	return findMessage(withAssociations(s.DB.WithContext(ctx)), id)
}

// Mutate applies m to the message with the given id. The returned flag is
// false when the mutation left the message unchanged.
func (s *Service) Mutate(ctx context.Context, id string, m Mutation) (*models.Message, bool, error) {
	var (
		msg     *models.Message
		changed bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head models.Message
		if err := tx.Select("id", "room").Where("id = ?", id).First(&head).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var err error
		if changed, err = m.apply(tx, head.ID); err != nil {
			return err
		}

		msg, err = findMessage(withAssociations(tx), head.ID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to mutate message", "message", id, "error", err)
		return nil, false, persistence("mutate message", err)
	}

	if changed {
		s.invalidate(ctx, msg.Room)
	}
	return msg, changed, nil
}

func (s *Service) latest(ctx context.Context, room string, offset, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := withAssociations(s.DB.WithContext(ctx)).
		Where("room = ?", room).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		s.logger.Error("failed to load history", "room", room, "error", err)
		return nil, persistence("fetch history", err)
	}

	slices.Reverse(msgs)
	for i := range msgs {
		msgs[i].Hydrate()
	}
	return msgs, nil
}

func (s *Service) invalidate(ctx context.Context, room string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, room); err != nil {
		s.logger.Warn("recent cache invalidation failed", "room", room, "error", err)
	}
}

func withAssociations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Readers", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") })
}

func findMessage(db *gorm.DB, id string) (*models.Message, error) {
	var msg models.Message
	err := db.Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("find message", err)
	}
	msg.Hydrate()
	return &msg, nil
}
