package registry

import (
	"context"
	"errors"
	"log"
	"strings"

	"qms/turn-service/internal/auth"
	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

type StaffInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

const minPasswordLength = 8

func (s *Service) CreateStaff(ctx context.Context, input StaffInput) (models.Staff, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	role := strings.TrimSpace(input.Role)
	if name == "" || email == "" {
		return models.Staff{}, invalid("name and email are required")
	}
	if !models.ValidRole(role) {
		return models.Staff{}, invalid("role must be admin, agent or receptionist")
	}
	if len(input.Password) < minPasswordLength {
		return models.Staff{}, invalid("password must be at least 8 characters")
	}
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return models.Staff{}, err
	}

	var created models.Staff
	err = s.store.Update(ctx, func(q store.Queries) error {
		var err error
		created, err = q.InsertStaff(ctx, models.Staff{Name: name, Email: email, PasswordHash: hash, Role: role})
		return err
	})
	return created, err
}

func (s *Service) ListStaff(ctx context.Context) ([]models.Staff, error) {
	var list []models.Staff
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		list, err = q.ListStaff(ctx)
		return err
	})
	if list == nil {
		list = []models.Staff{}
	}
	return list, err
}

func (s *Service) GetStaff(ctx context.Context, staffID string) (models.Staff, error) {
	var staff models.Staff
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		staff, err = q.GetStaff(ctx, staffID)
		return err
	})
	return staff, err
}

// UpdateStaff ignores blank fields. A new password is hashed before storing.
func (s *Service) UpdateStaff(ctx context.Context, staffID string, input StaffInput) (models.Staff, error) {
	role := strings.TrimSpace(input.Role)
	if role != "" && !models.ValidRole(role) {
		return models.Staff{}, invalid("role must be admin, agent or receptionist")
	}
	var hash string
	if input.Password != "" {
		if len(input.Password) < minPasswordLength {
			return models.Staff{}, invalid("password must be at least 8 characters")
		}
		var err error
		if hash, err = auth.HashPassword(input.Password); err != nil {
			return models.Staff{}, err
		}
	}

	var updated models.Staff
	err := s.store.Update(ctx, func(q store.Queries) error {
		staff, err := q.GetStaff(ctx, staffID)
		if err != nil {
			return err
		}
		staff.Name = pick(input.Name, staff.Name)
		staff.Email = strings.ToLower(pick(input.Email, staff.Email))
		staff.Role = pick(role, staff.Role)
		staff.PasswordHash = pick(hash, staff.PasswordHash)
		updated, err = q.UpdateStaff(ctx, staff)
		return err
	})
	return updated, err
}

// DeleteStaff refuses to remove a staff member who still holds a module.
func (s *Service) DeleteStaff(ctx context.Context, staffID string) error {
	return s.store.Update(ctx, func(q store.Queries) error {
		if _, err := q.GetStaff(ctx, staffID); err != nil {
			return err
		}
		if _, holds, err := q.ModuleByAgent(ctx, staffID); err != nil {
			return err
		} else if holds {
			return store.ErrStaffHoldsModule
		}
		return q.DeleteStaff(ctx, staffID)
	})
}

// Authenticate checks email and password and returns the staff member.
// Unknown emails and wrong passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (models.Staff, error) {
	var staff models.Staff
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		staff, err = q.GetStaffByEmail(ctx, strings.TrimSpace(email))
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrStaffNotFound) {
			return models.Staff{}, auth.ErrInvalidCredentials
		}
		return models.Staff{}, err
	}
	if err := auth.CheckPassword(staff.PasswordHash, password); err != nil {
		return models.Staff{}, err
	}
	return staff, nil
}

// EnsureAdmin creates an admin account when no staff exist yet. It reports
// whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	var count int
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		count, err = q.CountStaff(ctx)
		return err
	})
	if err != nil || count > 0 {
		return false, err
	}
	admin, err := s.CreateStaff(ctx, StaffInput{Name: "Administrator", Email: email, Password: password, Role: models.RoleAdmin})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return false, nil
		}
		return false, err
	}
	log.Printf("bootstrap admin created staff_id=%s email=%s", admin.StaffID, admin.Email)
	return true, nil
}
