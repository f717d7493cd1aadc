package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/rdc-learning-api/pkg/money"
)

// Course is a catalog entry. Cycles and templates are loaded alongside it.
type Course struct {
	ID                string         `db:"id" json:"id"`
	Title             string         `db:"title" json:"title"`
	Price             money.Amount   `db:"price" json:"price"`
	DiscountPrice     *money.Amount  `db:"discount_price" json:"discount_price,omitempty"`
	PriceLabel        string         `db:"price_label" json:"price_label"`
	IsPrebooking      bool           `db:"is_prebooking" json:"is_prebooking"`
	PrebookingCount   int            `db:"prebooking_count" json:"prebooking_count"`
	IncludedCourseIDs pq.StringArray `db:"included_course_ids" json:"included_course_ids"`
	ModuleIDs         pq.StringArray `db:"module_ids" json:"module_ids"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`

	Cycles              []Cycle              `db:"-" json:"cycles"`
	AssignmentTemplates []AssignmentTemplate `db:"-" json:"assignment_templates"`
	ExamTemplates       []ExamTemplate       `db:"-" json:"exam_templates"`
}

// IsBundle reports whether enrolling also grants the included courses.
func (c *Course) IsBundle() bool {
	return len(c.IncludedCourseIDs) > 0
}

// FindCycle returns the embedded cycle with the given id.
func (c *Course) FindCycle(id string) (*Cycle, bool) {
	for i := range c.Cycles {
		if c.Cycles[i].ID == id {
			return &c.Cycles[i], true
		}
	}
	return nil, false
}

// Cycle is a sub-offering of a course with its own price and module list.
type Cycle struct {
	ID        string         `db:"id" json:"id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	Title     string         `db:"title" json:"title"`
	Price     money.Amount   `db:"price" json:"price"`
	ModuleIDs pq.StringArray `db:"module_ids" json:"module_ids"`
	Position  int            `db:"position" json:"position"`
}

// AssignmentTemplate is cloned into a per-student Assignment on enrollment.
type AssignmentTemplate struct {
	ID          string `db:"id" json:"id"`
	CourseID    string `db:"course_id" json:"course_id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	TotalMarks  int    `db:"total_marks" json:"total_marks"`
	DueDays     int    `db:"due_days" json:"due_days"`
}

// ExamTemplate is cloned into a per-student Exam on enrollment.
type ExamTemplate struct {
	ID              string `db:"id" json:"id"`
	CourseID        string `db:"course_id" json:"course_id"`
	Title           string `db:"title" json:"title"`
	TotalMarks      int    `db:"total_marks" json:"total_marks"`
	DurationMinutes int    `db:"duration_minutes" json:"duration_minutes"`
}

// Assignment is a student's copy of an assignment template.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	TemplateID  string     `db:"template_id" json:"template_id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	TotalMarks  int        `db:"total_marks" json:"total_marks"`
	Status      string     `db:"status" json:"status"`
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Exam is a student's copy of an exam template.
type Exam struct {
	ID              string    `db:"id" json:"id"`
	TemplateID      string    `db:"template_id" json:"template_id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	Title           string    `db:"title" json:"title"`
	TotalMarks      int       `db:"total_marks" json:"total_marks"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// PerStudentID derives the id of a cloned assignment or exam.
func PerStudentID(templateID, userID string) string {
	return templateID + "-" + userID
}
