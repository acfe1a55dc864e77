package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('Owner','Staff');not null;default:'Staff'" json:"role"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Password string   `json:"password" binding:"required,min=6"`
	Role     UserRole `json:"role" binding:"required"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	if input.Role != UserRoleOwner && input.Role != UserRoleStaff {
		return nil, errors.New("invalid role")
	}
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Name:     input.Name,
		Password: string(hashed),
		Role:     input.Role,
		IsActive: true,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type SigninInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SigninUser checks credentials and issues a signed token. Wrong username
// and wrong password return the same error on purpose.
func SigninUser(ctx context.Context, input *SigninInput) (string, *User, error) {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).
		Where("username = ?", input.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, errors.New("invalid username or password")
		}
		return "", nil, err
	}
	if !user.IsActive {
		return "", nil, errors.New("account is disabled")
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return "", nil, errors.New("invalid username or password")
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, user.Name, string(user.Role))
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func ChangePassword(ctx context.Context, userId int, input *ChangePasswordInput) error {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).Where("id = ?", userId).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Kind: "user", Key: itoa(userId)}
		}
		return err
	}
	if err := utils.ComparePassword(user.Password, input.OldPassword); err != nil {
		return errors.New("old password does not match")
	}

	hashed, err := utils.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&user).Update("password", string(hashed)).Error
}

func GetUsers(ctx context.Context) ([]*User, error) {
	db := config.GetDB()

	var users []*User
	if err := db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
