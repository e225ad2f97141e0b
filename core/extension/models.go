package extension

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-materials/core"
)

type Status string

// Request statuses. pending is the only non-terminal one.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a student's ask for more viewing time on a video material.
type Request struct {
	ID         string     `json:"id"`
	MaterialID string     `json:"material_id"`
	StudentID  string     `json:"student_id"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`           // UTC
	DecidedAt  *time.Time `json:"decided_at,omitempty"` // UTC
	DecidedBy  string     `json:"decided_by,omitempty"`
}

func (r Request) IsPending() bool { return r.Status == StatusPending }

// NewRequest contains information needed to submit a Request.
type NewRequest struct {
	MaterialID string `json:"-"`
	StudentID  string `json:"-"`
	Reason     string `json:"reason" validate:"required,nonblank,max=2000"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Reason = core.CleanString(nr.Reason)
	return validate.Struct(nr)
}

// Decision is taken on a pending Request; the approver is passed alongside it.
type Decision struct {
	RequestID string
	Approve   bool
}

func (d Decision) Status() Status {
	if d.Approve {
		return StatusApproved
	}
	return StatusRejected
}

type QueryFilter struct {
	Status     Status `query:"status"`
	MaterialID string `query:"material_id"`
	StudentID  string `query:"student_id"`
	ClassID    string `query:"class_id"`
	// TeacherID limits the results to the classes taught by a teacher.
	TeacherID string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.MaterialID = core.CleanString(qf.MaterialID)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.ClassID = core.CleanString(qf.ClassID)
}
