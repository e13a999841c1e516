// internal/repository/gorm_store.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/javajoker/od-approval-backend/internal/models"
)

type GormODRequestStore struct {
	db *gorm.DB
}

func NewGormODRequestStore(db *gorm.DB) *GormODRequestStore {
	return &GormODRequestStore{db: db}
}

func (s *GormODRequestStore) Create(ctx context.Context, req *models.ODRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return mapGormError(err)
	}
	return nil
}

func (s *GormODRequestStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ODRequest, error) {
	var req models.ODRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &req, nil
}

// Update issues one UPDATE ... WHERE id = ? AND <cond>, so the check and the
// write are a single statement and concurrent writers cannot interleave.
func (s *GormODRequestStore) Update(ctx context.Context, id uuid.UUID, cond Condition, patch models.ODRequestPatch) (*models.ODRequest, error) {
	cols := patch.Columns()
	if len(cols) == 0 {
		return s.GetByID(ctx, id)
	}

	var updated models.ODRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := applyCondition(tx.Model(&models.ODRequest{}).Where("id = ?", id), cond)
		result := query.Updates(cols)
		if result.Error != nil {
			return mapGormError(result.Error)
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.ODRequest{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("check od request existence: %w", err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConditionFailed
		}

		return tx.First(&updated, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *GormODRequestStore) Find(ctx context.Context, filter ODRequestFilter) ([]models.ODRequest, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ODRequest{})
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.ClassAdvisor != nil {
		query = query.Where("class_advisor = ?", *filter.ClassAdvisor)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	query = applyCondition(query, Condition{Statuses: filter.Statuses, ChangedBefore: filter.ChangedBefore})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count od requests: %w", err)
	}

	order := "created_at DESC"
	if filter.SortByStatusChange {
		order = "last_status_change_at DESC"
	}
	query = query.Order(order).Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var requests []models.ODRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("find od requests: %w", err)
	}
	return requests, total, nil
}

func applyCondition(query *gorm.DB, cond Condition) *gorm.DB {
	if len(cond.Statuses) > 0 {
		query = query.Where("status IN ?", cond.Statuses)
	}
	if cond.ProofSubmitted != nil {
		query = query.Where("proof_submitted = ?", *cond.ProofSubmitted)
	}
	if cond.ChangedBefore != nil {
		query = query.Where("last_status_change_at < ?", *cond.ChangedBefore)
	}
	return query
}

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return mapGormError(err)
	}
	return nil
}

func (s *GormUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &user, nil
}

func (s *GormUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &user, nil
}

func (s *GormUserStore) GetByRegisterNo(ctx context.Context, registerNo string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("register_no = ?", registerNo).First(&user).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &user, nil
}

func (s *GormUserStore) FindOne(ctx context.Context, filter UserFilter) (*models.User, error) {
	var user models.User
	if err := userQuery(s.db.WithContext(ctx), filter).Order("created_at ASC").First(&user).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &user, nil
}

func (s *GormUserStore) Find(ctx context.Context, filter UserFilter) ([]models.User, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := userQuery(s.db.WithContext(ctx), filter).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

func (s *GormUserStore) Departments(ctx context.Context) ([]string, error) {
	var departments []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("department <> ''").
		Distinct("department").
		Order("department ASC").
		Pluck("department", &departments).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

func (s *GormUserStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func userQuery(query *gorm.DB, filter UserFilter) *gorm.DB {
	query = query.Model(&models.User{})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	return query
}

func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
