// Package auth implements AdminFacade's password-reset and admin-bootstrap
// flows, supplemented from original_source/auth.py since spec.md §6 names
// reset_password as an operation without a home component.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/uzzalhcse/proxynest/internal/logger"
	"github.com/uzzalhcse/proxynest/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the current password does not
// match the stored hash.
var ErrInvalidCredentials = errors.New("invalid current credentials")

// Service wraps the users table with bcrypt hashing.
type Service struct {
	users *storage.UserRepository
}

func New(users *storage.UserRepository) *Service {
	return &Service{users: users}
}

// Bootstrap mirrors admincheck(): ensures at least one admin user exists,
// creating one from the configured username/password if the table is empty.
func (s *Service) Bootstrap(ctx context.Context, username, password string) error {
	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if _, err := s.users.Create(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	logger.Info("bootstrapped default admin user", zap.String("username", username))
	return nil
}

// ResetPassword verifies oldPassword against the stored hash before
// rehashing and persisting newPassword.
func (s *Service) ResetPassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, username, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
