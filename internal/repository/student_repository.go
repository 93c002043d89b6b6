package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/markaz-adp-api/internal/models"
)

// StudentRepository manages persistence for student records. Deletion is
// always a soft delete so historical billing stays reconstructable.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN education_levels l ON l.id = s.education_level_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if !filter.ShowDeleted {
		conditions = append(conditions, "s.deleted_at IS NULL")
	}
	if filter.EducationLevelID != "" {
		conditions = append(conditions, fmt.Sprintf("s.education_level_id = $%d", len(args)+1))
		args = append(args, filter.EducationLevelID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR s.parent_phone LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":  "s.full_name",
		"created_at": "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.full_name, s.parent_phone, s.education_level_id, s.class_label, s.deleted_at, s.created_at, s.updated_at,
        l.name_ar AS level_name_ar, l.name_en AS level_name_en
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListRoster returns every non-deleted student ordered by name. Dues
// reconciliation seeds its rows from this so zero-activity students still
// get a row.
func (r *StudentRepository) ListRoster(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT id, full_name, parent_phone, education_level_id, class_label, deleted_at, created_at, updated_at FROM students WHERE deleted_at IS NULL ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return students, nil
}

// ExportRoster returns every non-deleted student with level names joined,
// unpaginated, for the spreadsheet export.
func (r *StudentRepository) ExportRoster(ctx context.Context) ([]models.StudentDetail, error) {
	const query = `SELECT s.id, s.full_name, s.parent_phone, s.education_level_id, s.class_label, s.deleted_at, s.created_at, s.updated_at,
        l.name_ar AS level_name_ar, l.name_en AS level_name_en
        FROM students s
        LEFT JOIN education_levels l ON l.id = s.education_level_id
        WHERE s.deleted_at IS NULL
        ORDER BY s.full_name ASC`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("export roster: %w", err)
	}
	return students, nil
}

// FindByID fetches a student detail by ID, deleted rows included.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.full_name, s.parent_phone, s.education_level_id, s.class_label, s.deleted_at, s.created_at, s.updated_at,
        l.name_ar AS level_name_ar, l.name_en AS level_name_en
        FROM students s
        LEFT JOIN education_levels l ON l.id = s.education_level_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByName checks the full-name uniqueness rule among non-deleted
// students, optionally excluding an ID.
func (r *StudentRepository) ExistsByName(ctx context.Context, fullName string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE full_name = $1 AND deleted_at IS NULL"
	args := []interface{}{fullName}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student name: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, parent_phone, education_level_id, class_label, deleted_at, created_at, updated_at)
        VALUES (:id, :full_name, :parent_phone, :education_level_id, :class_label, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, parent_phone = :parent_phone, education_level_id = :education_level_id, class_label = :class_label, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SoftDelete marks a student deleted. One-way; there is no undelete.
func (r *StudentRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE students SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, deletedAt); err != nil {
		return fmt.Errorf("soft delete student: %w", err)
	}
	return nil
}
