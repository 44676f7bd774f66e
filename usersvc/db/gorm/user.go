package gorm

import (
	"context"
	"errors"

	"github.com/ichigozero/taskkeeper/usersvc"
	libgorm "gorm.io/gorm"
)

type userRepository struct {
	db *libgorm.DB
}

func NewUserRepository(db *libgorm.DB) usersvc.UserRepository {
	return &userRepository{db}
}

func (u *userRepository) User(ctx context.Context, id string) (usersvc.User, error) {
	if id == "" {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}

	var user usersvc.User
	err := u.db.WithContext(ctx).Omit("password").Where("id = ?", id).First(&user).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}

	return user, err
}
