package models

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword: пустой пароль админа не принимаем
var ErrEmptyPassword = errors.New("admin password is empty")

// HashPassword превращает пароль админа в bcrypt-хэш
func HashPassword(pw string) (string, error) {
	if pw == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword сверяет пароль с хэшем (bcrypt сравнивает за постоянное время)
func CheckPassword(hash, pw string) bool {
	if hash == "" || pw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// IsPasswordHash: похоже ли значение на bcrypt-хэш
func IsPasswordHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
