package models

import (
	"errors"
	"strings"

	"github.com/carwash-next/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultOperatorUsername = "admin"
	defaultOperatorPassword = "admin123"
)

// HashPassword 生成 bcrypt 密码哈希
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 校验密码与哈希是否匹配
func CheckPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// InitDefaultOperator 初始化默认超级操作员（表为空时）
func InitDefaultOperator(username, password string) error {
	var count int64
	if err := DB.Model(&Operator{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultOperatorUsername
	}
	if password == "" {
		password = defaultOperatorPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	operator := Operator{
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		IsSuper:      true,
	}
	if err := DB.Create(&operator).Error; err != nil {
		return err
	}

	if password == defaultOperatorPassword {
		logger.Warnw("default_operator_created_with_default_password", "username", username)
	} else {
		logger.Infow("default_operator_created", "username", username)
	}
	return nil
}
