package material

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-materials/core"
)

type ContentType string

const (
	TypeVideo ContentType = "video"
	TypePDF   ContentType = "pdf"
	TypeLink  ContentType = "link"
)

// Material is one piece of class content.
// Only video materials are time-gated: they carry the requesting student's VideoAccess.
type Material struct {
	ID         string      `json:"id"`
	ClassID    string      `json:"class_id"`
	Title      string      `json:"title"`
	Type       ContentType `json:"type"`
	Location   string      `json:"location"`
	UploadedAt time.Time   `json:"uploaded_at"` // UTC

	*VideoAccess // set on video materials fetched by a student
}

func (m Material) IsVideo() bool { return m.Type == TypeVideo }

// VideoAccess is the access window state of one student on one video material.
// A nil AccessStartTime means no window was started in the current cycle.
type VideoAccess struct {
	MaterialID        string     `json:"-"`
	StudentID         string     `json:"-"`
	AccessStartTime   *time.Time `json:"access_start_time"` // UTC
	ExtensionApproved bool       `json:"extension_approved"`
	UpdatedAt         time.Time  `json:"-"`
}

// Window returns the access window derived from the state; false if none was started.
func (va VideoAccess) Window() (AccessWindow, bool) {
	if va.AccessStartTime == nil {
		return AccessWindow{}, false
	}
	return AccessWindow{StartedAt: *va.AccessStartTime, Extended: va.ExtensionApproved}, true
}

// NewMaterial contains information needed to record a new Material.
// The content itself is uploaded elsewhere; Location points to it.
type NewMaterial struct {
	ClassID  string      `json:"-"`
	Title    string      `json:"title" validate:"required"`
	Type     ContentType `json:"type" validate:"required,oneof=video pdf link"`
	Location string      `json:"location" validate:"required"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Type = ContentType(core.CleanString(string(nm.Type), true /* lower */))
	nm.Location = core.CleanString(nm.Location)
	return validate.Struct(nm)
}

type QueryFilter struct {
	ClassID string      `query:"-"`
	Type    ContentType `query:"type"`
	Search  string      `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Type = ContentType(core.CleanString(string(qf.Type), true /* lower */))
	qf.Search = core.CleanString(qf.Search)
}
