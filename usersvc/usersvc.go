package usersvc

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRepository looks up accounts. User never returns the password.
type UserRepository interface {
	User(ctx context.Context, id string) (User, error)
}

var ErrUserNotFound = errors.New("user not found")
