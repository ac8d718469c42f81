package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore is a GORM implementation of Store
type GormStore struct {
	db *gorm.DB
}

// NewStore creates a new Store
func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *GormStore) Groups() GroupRepository {
	return NewGroupRepository(s.db)
}

func (s *GormStore) Invitations() InvitationRepository {
	return NewInvitationRepository(s.db)
}

func (s *GormStore) Projects() ProjectRepository {
	return NewProjectRepository(s.db)
}

// WithContext returns a Store whose queries use ctx
func (s *GormStore) WithContext(ctx context.Context) Store {
	return &GormStore{db: s.db.WithContext(ctx)}
}

// Transaction runs fn inside a database transaction
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
