package extension

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound        = errors.New("extension request not found")
	ErrForbidden       = errors.New("not allowed to decide on this request")
	ErrAlreadyDecided  = errors.New("extension request already decided")
	ErrPendingExists   = errors.New("an extension request is already pending for this material")
	ErrAlreadyExtended = errors.New("an extension was already granted for this material")
	ErrWindowActive    = errors.New("the viewing window of this material has not expired yet")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, r Request, exec ...core.DBExecutor) (Request, error)
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		HasPendingRequest(ctx context.Context, materialID, studentID string, exec ...core.DBExecutor) (bool, error)
		QueryRequests(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Request, error)
		// DecideRequest atomically stores the decision of a pending Request.
		// On approval the student's video access of the material is flagged as extended
		// and its start time cleared, opening a new window cycle.
		// It returns ErrAlreadyDecided if the stored Request is no longer pending.
		DecideRequest(ctx context.Context, r Request) (Request, error)
	}

	Service interface {
		// Submit records a pending Request; approval happens out-of-band (Decide).
		Submit(ctx context.Context, nr NewRequest) (Request, error)
		Decide(ctx context.Context, d Decision, approver user.User) (Request, error)
		Get(ctx context.Context, id string, usr user.User) (Request, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, usr user.User) ([]Request, error)
	}

	service struct {
		repo        Repository
		materialSvc material.Service
		classSvc    class.Service
		userSvc     user.Service
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	materialSvc material.Service,
	classSvc class.Service,
	userSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) Service {
	return &service{
		repo:        repo,
		materialSvc: materialSvc,
		classSvc:    classSvc,
		userSvc:     userSvc,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

func (svc *service) Submit(ctx context.Context, nr NewRequest) (Request, error) {
	nr.Reason = core.CleanString(nr.Reason)
	if nr.Reason == "" {
		return Request{}, core.NewFieldError("reason", "this field is required")
	}

	m, err := svc.materialSvc.GetForStudent(ctx, nr.MaterialID, nr.StudentID)
	if err != nil {
		return Request{}, err
	}

	va, err := svc.materialSvc.VideoAccess(ctx, m.ID, nr.StudentID)
	if err != nil {
		return Request{}, errors.Wrap(err, "getting video access")
	}
	if va.ExtensionApproved {
		return Request{}, core.NewValidationError(ErrAlreadyExtended)
	}
	// approval clears the start time, so a running window must not be cut short
	if w, ok := va.Window(); ok && !w.Expired(NowFunc()) {
		return Request{}, core.NewValidationError(ErrWindowActive)
	}

	pending, err := svc.repo.HasPendingRequest(ctx, m.ID, nr.StudentID)
	if err != nil {
		return Request{}, errors.Wrap(err, "checking pending requests")
	}
	if pending {
		return Request{}, core.NewValidationError(ErrPendingExists)
	}

	r, err := svc.repo.CreateRequest(ctx, Request{
		MaterialID: m.ID,
		StudentID:  nr.StudentID,
		Reason:     nr.Reason,
		Status:     StatusPending,
		CreatedAt:  NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrPendingExists { // lost a race with a concurrent submit
			return Request{}, core.NewValidationError(ErrPendingExists)
		}
		return Request{}, errors.Wrap(err, "creating extension request")
	}

	svc.notifyTeacher(ctx, m, r)
	return r, nil
}

func (svc *service) Decide(ctx context.Context, d Decision, approver user.User) (Request, error) {
	r, err := svc.repo.GetRequest(ctx, d.RequestID)
	if err != nil {
		return Request{}, err
	}

	m, cls, err := svc.materialAndClass(ctx, r.MaterialID)
	if err != nil {
		return Request{}, err
	}
	if !canDecide(cls, approver) {
		return Request{}, ErrForbidden
	}
	if !r.IsPending() {
		return Request{}, core.NewValidationError(ErrAlreadyDecided)
	}

	now := NowFunc().UTC()
	r.Status = d.Status()
	r.DecidedAt = &now
	r.DecidedBy = approver.ID
	if r, err = svc.repo.DecideRequest(ctx, r); err != nil {
		if errors.Cause(err) == ErrAlreadyDecided {
			return Request{}, core.NewValidationError(ErrAlreadyDecided)
		}
		return Request{}, errors.Wrap(err, "deciding extension request")
	}

	svc.notifyStudent(ctx, m, r)
	return r, nil
}

func (svc *service) Get(ctx context.Context, id string, usr user.User) (Request, error) {
	r, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if usr.IsAdmin() || r.StudentID == usr.ID {
		return r, nil
	}
	if _, cls, err := svc.materialAndClass(ctx, r.MaterialID); err != nil {
		return Request{}, err
	} else if canDecide(cls, usr) {
		return r, nil
	}
	return Request{}, ErrNotFound
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, usr user.User) ([]Request, error) {
	switch {
	case usr.IsAdmin(): // everything
	case usr.IsTeacher():
		filter.TeacherID = usr.ID
	default:
		filter.StudentID = usr.ID
	}
	requests, err := svc.repo.QueryRequests(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying extension requests")
	}
	return requests, nil
}

func (svc *service) materialAndClass(ctx context.Context, materialID string) (material.Material, class.Class, error) {
	m, err := svc.materialSvc.GetByID(ctx, materialID)
	if err != nil {
		return material.Material{}, class.Class{}, errors.Wrap(err, "finding material")
	}
	cls, err := svc.classSvc.GetByID(ctx, m.ClassID)
	if err != nil {
		return material.Material{}, class.Class{}, errors.Wrap(err, "finding class")
	}
	return m, cls, nil
}

func canDecide(cls class.Class, usr user.User) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && cls.TeacherID == usr.ID)
}

// Notifications: failures are logged, never returned to the caller.

type (
	requestedMailData struct {
		RequestID     string
		StudentName   string
		MaterialTitle string
		ClassName     string
		Reason        string
	}

	decidedMailData struct {
		MaterialID    string
		MaterialTitle string
		Status        Status
		Approved      bool
		Window        time.Duration
	}
)

func (svc *service) notifyTeacher(ctx context.Context, m material.Material, r Request) {
	cls, err := svc.classSvc.GetByID(ctx, m.ClassID)
	if err != nil || cls.TeacherID == "" {
		if err != nil {
			svc.logger.Error(fmt.Sprintf("notifying teacher: %v", err), err)
		}
		return
	}
	users, err := svc.userSvc.QueryByIDs(ctx, cls.TeacherID, r.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying teacher: %v", err), err)
		return
	}
	var teacher, student user.User
	for _, u := range users {
		switch u.ID {
		case cls.TeacherID:
			teacher = u
		case r.StudentID:
			student = u
		}
	}
	if teacher.Email == "" {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: teacher.DisplayName(), Address: teacher.Email}},
		Subject:      "Extension request: " + m.Title,
		TemplateName: "extension_requested",
		TemplateData: requestedMailData{
			RequestID:     r.ID,
			StudentName:   student.DisplayName(),
			MaterialTitle: m.Title,
			ClassName:     cls.Name,
			Reason:        r.Reason,
		},
	})
}

func (svc *service) notifyStudent(ctx context.Context, m material.Material, r Request) {
	student, err := svc.userSvc.GetByID(ctx, r.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying student: %v", err), err)
		return
	}
	if student.Email == "" {
		return
	}

	approved := r.Status == StatusApproved
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.DisplayName(), Address: student.Email}},
		Subject:      fmt.Sprintf("Extension request %s: %s", r.Status, m.Title),
		TemplateName: "extension_decided",
		TemplateData: decidedMailData{
			MaterialID:    m.ID,
			MaterialTitle: m.Title,
			Status:        r.Status,
			Approved:      approved,
			Window:        material.WindowDuration(approved),
		},
	})
}
