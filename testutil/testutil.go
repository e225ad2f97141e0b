// Package testutil sets up in-memory fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	"github.com/trezcool/masomo-materials/services/email"
	"github.com/trezcool/masomo-materials/services/logger"
	"github.com/trezcool/masomo-materials/storage/database/inmem"
)

// Env wires the services on an in-memory database.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *inmemdb.DB
	MailSvc    *emailsvc.ConsoleServiceMock

	UserRepo      user.Repository
	ClassRepo     class.Repository
	MaterialRepo  material.Repository
	ExtensionRepo extension.Repository

	UserSvc      user.Service
	ClassSvc     class.Service
	MaterialSvc  material.Service
	ExtensionSvc extension.Service
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	core.ParseEmailTemplates(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	env := &Env{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		DB:            db,
		MailSvc:       emailsvc.NewConsoleServiceMock(conf, logger),
		UserRepo:      inmemdb.NewUserRepository(db),
		ClassRepo:     inmemdb.NewClassRepository(db),
		MaterialRepo:  inmemdb.NewMaterialRepository(db),
		ExtensionRepo: inmemdb.NewExtensionRepository(db),
	}
	env.UserSvc = user.NewService(env.UserRepo)
	env.ClassSvc = class.NewService(env.ClassRepo)
	env.MaterialSvc = material.NewService(env.MaterialRepo, env.ClassSvc)
	env.ExtensionSvc = extension.NewService(env.ExtensionRepo, env.MaterialSvc, env.ClassSvc, env.UserSvc, env.MailSvc, logger)
	return env
}

// Reset empties the database and the sent emails.
func (env *Env) Reset() {
	env.DB.Reset()
	env.MailSvc.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, name, teacherID string) class.Class {
	cls, err := repo.CreateClass(context.Background(), class.Class{
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

// Subscribe subscribes the student to the class; a zero expiresAt never expires.
func Subscribe(t *testing.T, repo class.Repository, classID, studentID string, isActive bool, expiresAt time.Time) class.Subscription {
	sub, err := repo.SaveSubscription(context.Background(), class.Subscription{
		ClassID:   classID,
		StudentID: studentID,
		IsActive:  isActive,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	return sub
}

func CreateMaterial(
	t *testing.T,
	repo material.Repository,
	classID, title string,
	typ material.ContentType,
	uploadedAt ...time.Time,
) material.Material {
	tstamp := time.Now().UTC()
	if len(uploadedAt) > 0 {
		tstamp = uploadedAt[0].UTC()
	}
	m, err := repo.CreateMaterial(context.Background(), material.Material{
		ClassID:    classID,
		Title:      title,
		Type:       typ,
		Location:   "https://cdn.test/" + title,
		UploadedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateMaterial() failed: %v", err)
	}
	return m
}

// FixedClock returns a mockable NowFunc that always returns *now.
func FixedClock(now *time.Time) func() time.Time {
	return func() time.Time { return *now }
}
