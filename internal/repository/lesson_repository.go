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

// LessonRepository persists the three lesson kinds and the group
// participant junction. All deletes are soft deletes.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs a LessonRepository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const (
	individualColumns = "id, teacher_id, student_id, education_level_id, lesson_date, start_time, hours, total_cost, approved, price_locked, deleted_at, deletion_note, created_at, updated_at"
	groupColumns      = "id, teacher_id, education_level_id, lesson_date, start_time, hours, total_cost, approved, price_locked, deleted_at, deletion_note, created_at, updated_at"
	remedialColumns   = "id, teacher_id, student_id, lesson_date, start_time, hours, total_cost, approved, price_locked, deleted_at, deletion_note, created_at, updated_at"
)

// lessonConditions renders the shared filter into SQL conditions. hasStudent
// and hasLevel gate the columns that do not exist on every kind.
func lessonConditions(filter models.LessonFilter, hasStudent, hasLevel bool) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}

	if !filter.ShowDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("lesson_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("lesson_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if hasStudent && filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if hasLevel && filter.EducationLevelID != "" {
		conditions = append(conditions, fmt.Sprintf("education_level_id = $%d", len(args)+1))
		args = append(args, filter.EducationLevelID)
	}
	if filter.Approved != nil {
		conditions = append(conditions, fmt.Sprintf("approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}

	return conditions, args
}

func pageClause(filter models.LessonFilter) string {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return fmt.Sprintf("ORDER BY lesson_date DESC, start_time DESC LIMIT %d OFFSET %d", size, (page-1)*size)
}

// ListIndividual returns individual lessons matching the filter with total.
func (r *LessonRepository) ListIndividual(ctx context.Context, filter models.LessonFilter) ([]models.IndividualLesson, int, error) {
	conditions, args := lessonConditions(filter, true, true)
	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf("SELECT %s FROM individual_lessons WHERE %s %s", individualColumns, where, pageClause(filter))
	var lessons []models.IndividualLesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list individual lessons: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM individual_lessons WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count individual lessons: %w", err)
	}
	return lessons, total, nil
}

// ListGroup returns group lessons matching the filter with total. When the
// filter names a student it matches through the participant junction.
func (r *LessonRepository) ListGroup(ctx context.Context, filter models.LessonFilter) ([]models.GroupLesson, int, error) {
	conditions, args := lessonConditions(filter, false, true)
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT group_lesson_id FROM group_lesson_students WHERE student_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf("SELECT %s FROM group_lessons WHERE %s %s", groupColumns, where, pageClause(filter))
	var lessons []models.GroupLesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list group lessons: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM group_lessons WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count group lessons: %w", err)
	}
	return lessons, total, nil
}

// ListRemedial returns remedial lessons matching the filter with total.
func (r *LessonRepository) ListRemedial(ctx context.Context, filter models.LessonFilter) ([]models.RemedialLesson, int, error) {
	conditions, args := lessonConditions(filter, true, false)
	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf("SELECT %s FROM remedial_lessons WHERE %s %s", remedialColumns, where, pageClause(filter))
	var lessons []models.RemedialLesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list remedial lessons: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM remedial_lessons WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count remedial lessons: %w", err)
	}
	return lessons, total, nil
}

// FindIndividualByID fetches one individual lesson, deleted rows included.
func (r *LessonRepository) FindIndividualByID(ctx context.Context, id string) (*models.IndividualLesson, error) {
	query := fmt.Sprintf("SELECT %s FROM individual_lessons WHERE id = $1", individualColumns)
	var lesson models.IndividualLesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// FindGroupByID fetches one group lesson together with its participants.
func (r *LessonRepository) FindGroupByID(ctx context.Context, id string) (*models.GroupLesson, error) {
	query := fmt.Sprintf("SELECT %s FROM group_lessons WHERE id = $1", groupColumns)
	var lesson models.GroupLesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	participants, err := r.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	lesson.ParticipantIDs = participants
	return &lesson, nil
}

// FindRemedialByID fetches one remedial lesson, deleted rows included.
func (r *LessonRepository) FindRemedialByID(ctx context.Context, id string) (*models.RemedialLesson, error) {
	query := fmt.Sprintf("SELECT %s FROM remedial_lessons WHERE id = $1", remedialColumns)
	var lesson models.RemedialLesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// CreateIndividual inserts an individual lesson.
func (r *LessonRepository) CreateIndividual(ctx context.Context, lesson *models.IndividualLesson) error {
	prepareLesson(&lesson.LessonCore)
	const query = `INSERT INTO individual_lessons (id, teacher_id, student_id, education_level_id, lesson_date, start_time, hours, total_cost, approved, price_locked, created_at, updated_at)
        VALUES (:id, :teacher_id, :student_id, :education_level_id, :lesson_date, :start_time, :hours, :total_cost, :approved, :price_locked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create individual lesson: %w", err)
	}
	return nil
}

// CreateGroup inserts a group lesson and its participant rows. The writes
// are sequential; a participant failure is surfaced, not rolled back.
func (r *LessonRepository) CreateGroup(ctx context.Context, lesson *models.GroupLesson) error {
	prepareLesson(&lesson.LessonCore)
	const query = `INSERT INTO group_lessons (id, teacher_id, education_level_id, lesson_date, start_time, hours, total_cost, approved, price_locked, created_at, updated_at)
        VALUES (:id, :teacher_id, :education_level_id, :lesson_date, :start_time, :hours, :total_cost, :approved, :price_locked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create group lesson: %w", err)
	}
	for _, studentID := range lesson.ParticipantIDs {
		if err := r.AddParticipant(ctx, lesson.ID, studentID); err != nil {
			return err
		}
	}
	return nil
}

// CreateRemedial inserts a remedial lesson.
func (r *LessonRepository) CreateRemedial(ctx context.Context, lesson *models.RemedialLesson) error {
	prepareLesson(&lesson.LessonCore)
	const query = `INSERT INTO remedial_lessons (id, teacher_id, student_id, lesson_date, start_time, hours, total_cost, approved, price_locked, created_at, updated_at)
        VALUES (:id, :teacher_id, :student_id, :lesson_date, :start_time, :hours, :total_cost, :approved, :price_locked, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create remedial lesson: %w", err)
	}
	return nil
}

// UpdateIndividual rewrites the mutable fields of an unlocked lesson.
func (r *LessonRepository) UpdateIndividual(ctx context.Context, lesson *models.IndividualLesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE individual_lessons SET teacher_id = :teacher_id, student_id = :student_id, education_level_id = :education_level_id, lesson_date = :lesson_date, start_time = :start_time, hours = :hours, total_cost = :total_cost, updated_at = :updated_at
        WHERE id = :id AND price_locked = FALSE AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update individual lesson: %w", err)
	}
	return nil
}

// UpdateGroup rewrites the mutable fields of an unlocked group lesson.
func (r *LessonRepository) UpdateGroup(ctx context.Context, lesson *models.GroupLesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE group_lessons SET teacher_id = :teacher_id, education_level_id = :education_level_id, lesson_date = :lesson_date, start_time = :start_time, hours = :hours, total_cost = :total_cost, updated_at = :updated_at
        WHERE id = :id AND price_locked = FALSE AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update group lesson: %w", err)
	}
	return nil
}

// UpdateRemedial rewrites the mutable fields of an unlocked remedial lesson.
func (r *LessonRepository) UpdateRemedial(ctx context.Context, lesson *models.RemedialLesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE remedial_lessons SET teacher_id = :teacher_id, student_id = :student_id, lesson_date = :lesson_date, start_time = :start_time, hours = :hours, total_cost = :total_cost, updated_at = :updated_at
        WHERE id = :id AND price_locked = FALSE AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update remedial lesson: %w", err)
	}
	return nil
}

// UpdateRemedialCost recomputes only the stored cost of a pending unlocked
// remedial lesson, used after an approval shifts the student's rate tier.
func (r *LessonRepository) UpdateRemedialCost(ctx context.Context, id string, totalCost *float64) error {
	const query = `UPDATE remedial_lessons SET total_cost = $2, updated_at = $3 WHERE id = $1 AND approved = FALSE AND price_locked = FALSE AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, totalCost, time.Now().UTC()); err != nil {
		return fmt.Errorf("update remedial cost: %w", err)
	}
	return nil
}

// Approve flips a pending lesson to approved+locked. The guards in the
// WHERE clause make the transition one-way and deletion-safe.
func (r *LessonRepository) Approve(ctx context.Context, lessonType models.LessonType, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET approved = TRUE, price_locked = TRUE, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, lessonTable(lessonType))
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve %s lesson: %w", lessonType, err)
	}
	return nil
}

// ListPendingIDs returns the IDs of every pending non-deleted lesson of a
// kind, feeding bulk approval.
func (r *LessonRepository) ListPendingIDs(ctx context.Context, lessonType models.LessonType) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE approved = FALSE AND deleted_at IS NULL ORDER BY lesson_date ASC`, lessonTable(lessonType))
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list pending %s lessons: %w", lessonType, err)
	}
	return ids, nil
}

// SoftDelete marks a lesson deleted with an optional admin note.
func (r *LessonRepository) SoftDelete(ctx context.Context, lessonType models.LessonType, id string, note *string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, deletion_note = $3, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, lessonTable(lessonType))
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), note); err != nil {
		return fmt.Errorf("soft delete %s lesson: %w", lessonType, err)
	}
	return nil
}

// SoftDeleteByStudent soft-deletes every non-deleted individual or remedial
// lesson of a student; part of the student delete cascade.
func (r *LessonRepository) SoftDeleteByStudent(ctx context.Context, lessonType models.LessonType, studentID string, note *string) error {
	if lessonType == models.LessonTypeGroup {
		return fmt.Errorf("group lessons cascade through participants")
	}
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, deletion_note = $3, updated_at = $2 WHERE student_id = $1 AND deleted_at IS NULL`, lessonTable(lessonType))
	if _, err := r.db.ExecContext(ctx, query, studentID, time.Now().UTC(), note); err != nil {
		return fmt.Errorf("cascade delete %s lessons: %w", lessonType, err)
	}
	return nil
}

// ListParticipants returns the participant student IDs of a group lesson.
func (r *LessonRepository) ListParticipants(ctx context.Context, groupLessonID string) ([]string, error) {
	const query = `SELECT student_id FROM group_lesson_students WHERE group_lesson_id = $1 ORDER BY student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupLessonID); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ids, nil
}

// AddParticipant inserts a junction row.
func (r *LessonRepository) AddParticipant(ctx context.Context, groupLessonID, studentID string) error {
	const query = `INSERT INTO group_lesson_students (group_lesson_id, student_id) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, groupLessonID, studentID); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// RemoveParticipant deletes a junction row.
func (r *LessonRepository) RemoveParticipant(ctx context.Context, groupLessonID, studentID string) error {
	const query = `DELETE FROM group_lesson_students WHERE group_lesson_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, groupLessonID, studentID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GroupMemberships lists the non-deleted group lessons a student belongs to
// with the current participant count of each, for the delete cascade.
func (r *LessonRepository) GroupMemberships(ctx context.Context, studentID string) ([]models.GroupMembership, error) {
	const query = `SELECT gls.group_lesson_id, pc.participant_count
        FROM group_lesson_students gls
        JOIN group_lessons gl ON gl.id = gls.group_lesson_id AND gl.deleted_at IS NULL
        JOIN (SELECT group_lesson_id, COUNT(*) AS participant_count FROM group_lesson_students GROUP BY group_lesson_id) pc ON pc.group_lesson_id = gls.group_lesson_id
        WHERE gls.student_id = $1`
	var memberships []models.GroupMembership
	if err := r.db.SelectContext(ctx, &memberships, query, studentID); err != nil {
		return nil, fmt.Errorf("list group memberships: %w", err)
	}
	return memberships, nil
}

// CountApprovedRemedial counts a student's approved non-deleted remedial
// lessons, driving the two-rate selection.
func (r *LessonRepository) CountApprovedRemedial(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM remedial_lessons WHERE student_id = $1 AND approved = TRUE AND deleted_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count approved remedial: %w", err)
	}
	return count, nil
}

// ListPendingRemedialByStudent returns the student's pending unlocked
// remedial lessons so their costs can be recomputed after an approval.
func (r *LessonRepository) ListPendingRemedialByStudent(ctx context.Context, studentID string) ([]models.RemedialLesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM remedial_lessons WHERE student_id = $1 AND approved = FALSE AND price_locked = FALSE AND deleted_at IS NULL`, remedialColumns)
	var lessons []models.RemedialLesson
	if err := r.db.SelectContext(ctx, &lessons, query, studentID); err != nil {
		return nil, fmt.Errorf("list pending remedial: %w", err)
	}
	return lessons, nil
}

// ApprovedIndividualTotals sums approved non-deleted individual lesson
// costs per student.
func (r *LessonRepository) ApprovedIndividualTotals(ctx context.Context) ([]models.StudentAmount, error) {
	const query = `SELECT student_id, COALESCE(SUM(total_cost), 0) AS total FROM individual_lessons WHERE approved = TRUE AND deleted_at IS NULL AND total_cost IS NOT NULL GROUP BY student_id`
	var totals []models.StudentAmount
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("sum individual dues: %w", err)
	}
	return totals, nil
}

// ApprovedRemedialTotals sums approved non-deleted remedial lesson costs
// per student.
func (r *LessonRepository) ApprovedRemedialTotals(ctx context.Context) ([]models.StudentAmount, error) {
	const query = `SELECT student_id, COALESCE(SUM(total_cost), 0) AS total FROM remedial_lessons WHERE approved = TRUE AND deleted_at IS NULL AND total_cost IS NOT NULL GROUP BY student_id`
	var totals []models.StudentAmount
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("sum remedial dues: %w", err)
	}
	return totals, nil
}

// ApprovedGroupShares divides each approved non-deleted group lesson's
// stored total evenly across its current participants and sums per student.
// The stored total_cost is authoritative; tiers are never re-consulted here.
func (r *LessonRepository) ApprovedGroupShares(ctx context.Context) ([]models.StudentAmount, error) {
	const query = `SELECT gls.student_id, COALESCE(SUM(gl.total_cost / pc.participant_count), 0) AS total
        FROM group_lessons gl
        JOIN group_lesson_students gls ON gls.group_lesson_id = gl.id
        JOIN (SELECT group_lesson_id, COUNT(*) AS participant_count FROM group_lesson_students GROUP BY group_lesson_id) pc ON pc.group_lesson_id = gl.id
        WHERE gl.approved = TRUE AND gl.deleted_at IS NULL AND gl.total_cost IS NOT NULL
        GROUP BY gls.student_id`
	var totals []models.StudentAmount
	if err := r.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("sum group dues: %w", err)
	}
	return totals, nil
}

// ExportLedger flattens the three non-deleted lesson collections into one
// chronological list with teacher and student names resolved, for the CSV
// download.
func (r *LessonRepository) ExportLedger(ctx context.Context) ([]models.LessonLedgerRow, error) {
	const query = `SELECT 'individual' AS lesson_type, u.full_name AS teacher_name, s.full_name AS students, il.lesson_date, il.start_time, il.hours, il.total_cost, il.approved
        FROM individual_lessons il
        JOIN users u ON u.id = il.teacher_id
        JOIN students s ON s.id = il.student_id
        WHERE il.deleted_at IS NULL
        UNION ALL
        SELECT 'group', u.full_name, COALESCE(p.names, ''), gl.lesson_date, gl.start_time, gl.hours, gl.total_cost, gl.approved
        FROM group_lessons gl
        JOIN users u ON u.id = gl.teacher_id
        LEFT JOIN (SELECT gls.group_lesson_id, STRING_AGG(s.full_name, '، ' ORDER BY s.full_name) AS names
            FROM group_lesson_students gls
            JOIN students s ON s.id = gls.student_id
            GROUP BY gls.group_lesson_id) p ON p.group_lesson_id = gl.id
        WHERE gl.deleted_at IS NULL
        UNION ALL
        SELECT 'remedial', u.full_name, s.full_name, rl.lesson_date, rl.start_time, rl.hours, rl.total_cost, rl.approved
        FROM remedial_lessons rl
        JOIN users u ON u.id = rl.teacher_id
        JOIN students s ON s.id = rl.student_id
        WHERE rl.deleted_at IS NULL
        ORDER BY lesson_date DESC, start_time DESC`
	var rows []models.LessonLedgerRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("export lesson ledger: %w", err)
	}
	return rows, nil
}

func prepareLesson(core *models.LessonCore) {
	if core.ID == "" {
		core.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if core.CreatedAt.IsZero() {
		core.CreatedAt = now
	}
	core.UpdatedAt = now
}

func lessonTable(lessonType models.LessonType) string {
	switch lessonType {
	case models.LessonTypeIndividual:
		return "individual_lessons"
	case models.LessonTypeGroup:
		return "group_lessons"
	default:
		return "remedial_lessons"
	}
}
