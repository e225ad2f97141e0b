package material

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound       = errors.New("material not found")
	ErrNoSubscription = errors.New("no active subscription to this class")
	ErrNotVideo       = errors.New("only video materials have an access window")
)

type (
	Repository interface {
		CreateMaterial(ctx context.Context, m Material, exec ...core.DBExecutor) (Material, error)
		GetMaterial(ctx context.Context, id string, exec ...core.DBExecutor) (Material, error)
		QueryMaterials(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Material, error)

		// GetVideoAccess returns a zero state (nil AccessStartTime) when the student has none yet.
		GetVideoAccess(ctx context.Context, materialID, studentID string, exec ...core.DBExecutor) (VideoAccess, error)
		QueryVideoAccess(ctx context.Context, studentID string, materialIDs []string, exec ...core.DBExecutor) ([]VideoAccess, error)
		// StartVideoAccess sets AccessStartTime to `at` unless it is already set, and returns the stored state.
		// It must never overwrite an existing start time.
		StartVideoAccess(ctx context.Context, materialID, studentID string, at time.Time, exec ...core.DBExecutor) (VideoAccess, error)
	}

	Service interface {
		Create(ctx context.Context, nm NewMaterial) (Material, error)
		GetByID(ctx context.Context, id string) (Material, error)
		// Get returns a material usr may access; students get their own VideoAccess attached.
		Get(ctx context.Context, id string, usr user.User) (Material, error)
		ListByClass(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, usr user.User) ([]Material, error)
		// StartWindow starts the access window of studentID on a video material, if none was started.
		StartWindow(ctx context.Context, materialID, studentID string) (StartResult, error)
		// GetForStudent resolves a video material studentID is entitled to.
		GetForStudent(ctx context.Context, materialID, studentID string) (Material, error)
		VideoAccess(ctx context.Context, materialID, studentID string) (VideoAccess, error)
	}

	service struct {
		repo     Repository
		classSvc class.Service
	}
)

var _ Service = (*service)(nil)

// StartResult is the answer to a window start.
type StartResult struct {
	IsExtended       bool      `json:"is_extended"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Expired          bool      `json:"expired"`
}

func newStartResult(w AccessWindow, now time.Time) StartResult {
	rem := w.Remaining(now)
	return StartResult{
		IsExtended:       w.Extended,
		StartedAt:        w.StartedAt,
		ExpiresAt:        w.Expiry(),
		RemainingSeconds: int64(rem / time.Second),
		Expired:          rem == 0,
	}
}

func NewService(repo Repository, classSvc class.Service) Service {
	return &service{repo: repo, classSvc: classSvc}
}

func (svc *service) Create(ctx context.Context, nm NewMaterial) (Material, error) {
	if _, err := svc.classSvc.GetByID(ctx, nm.ClassID); err != nil {
		return Material{}, errors.Wrap(err, "finding class")
	}
	return svc.repo.CreateMaterial(ctx, Material{
		ClassID:    nm.ClassID,
		Title:      nm.Title,
		Type:       nm.Type,
		Location:   nm.Location,
		UploadedAt: NowFunc().UTC(),
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Material, error) {
	return svc.repo.GetMaterial(ctx, id)
}

func (svc *service) Get(ctx context.Context, id string, usr user.User) (Material, error) {
	m, err := svc.repo.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, err
	}
	cls, err := svc.classSvc.GetByID(ctx, m.ClassID)
	if err != nil {
		return Material{}, errors.Wrap(err, "finding class")
	}
	if err = svc.checkAccess(ctx, cls, usr); err != nil {
		return Material{}, err
	}
	if usr.IsStudent() && m.IsVideo() {
		va, err := svc.repo.GetVideoAccess(ctx, m.ID, usr.ID)
		if err != nil {
			return Material{}, errors.Wrap(err, "getting video access")
		}
		m.VideoAccess = &va
	}
	return m, nil
}

func (svc *service) ListByClass(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, usr user.User) ([]Material, error) {
	cls, err := svc.classSvc.GetByID(ctx, filter.ClassID)
	if err != nil {
		return nil, err
	}
	if err = svc.checkAccess(ctx, cls, usr); err != nil {
		return nil, err
	}

	materials, err := svc.repo.QueryMaterials(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	if !usr.IsStudent() {
		return materials, nil
	}

	// attach the student's own access state to videos
	videoIDs := make([]string, 0, len(materials))
	for _, m := range materials {
		if m.IsVideo() {
			videoIDs = append(videoIDs, m.ID)
		}
	}
	if len(videoIDs) == 0 {
		return materials, nil
	}
	states, err := svc.repo.QueryVideoAccess(ctx, usr.ID, videoIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying video access")
	}
	byMaterial := make(map[string]VideoAccess, len(states))
	for _, va := range states {
		byMaterial[va.MaterialID] = va
	}
	for i := range materials {
		if !materials[i].IsVideo() {
			continue
		}
		va, ok := byMaterial[materials[i].ID]
		if !ok {
			va = VideoAccess{MaterialID: materials[i].ID, StudentID: usr.ID}
		}
		materials[i].VideoAccess = &va
	}
	return materials, nil
}

func (svc *service) GetForStudent(ctx context.Context, materialID, studentID string) (Material, error) {
	m, err := svc.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return Material{}, err
	}
	if !m.IsVideo() {
		return Material{}, core.NewValidationError(ErrNotVideo)
	}
	ok, err := svc.classSvc.HasActiveSubscription(ctx, m.ClassID, studentID)
	if err != nil {
		return Material{}, errors.Wrap(err, "checking subscription")
	}
	if !ok {
		return Material{}, ErrNoSubscription
	}
	return m, nil
}

func (svc *service) StartWindow(ctx context.Context, materialID, studentID string) (StartResult, error) {
	m, err := svc.GetForStudent(ctx, materialID, studentID)
	if err != nil {
		return StartResult{}, err
	}

	now := NowFunc().UTC()
	va, err := svc.repo.StartVideoAccess(ctx, m.ID, studentID, now)
	if err != nil {
		return StartResult{}, errors.Wrap(err, "starting video access")
	}
	w, ok := va.Window()
	if !ok {
		return StartResult{}, errors.New("video access start time not recorded")
	}
	return newStartResult(w, now), nil
}

func (svc *service) VideoAccess(ctx context.Context, materialID, studentID string) (VideoAccess, error) {
	return svc.repo.GetVideoAccess(ctx, materialID, studentID)
}

func (svc *service) checkAccess(ctx context.Context, cls class.Class, usr user.User) error {
	ok, err := svc.classSvc.CanAccess(ctx, cls, usr)
	if err != nil {
		return errors.Wrap(err, "checking class access")
	}
	if !ok {
		return ErrNoSubscription
	}
	return nil
}
