package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/masomo-materials/apps/api/echo"
	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	emailsvc "github.com/trezcool/masomo-materials/services/email"
	logsvc "github.com/trezcool/masomo-materials/services/logger"
	"github.com/trezcool/masomo-materials/storage/database"
	inmemdb "github.com/trezcool/masomo-materials/storage/database/inmem"
	sqlxrepos "github.com/trezcool/masomo-materials/storage/database/sqlx"
)

// EngineInMemory runs the API on the in-memory repositories (demo mode, no postgres).
const EngineInMemory = "inmem"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the database; a no-op in memory.
	DBCloser func() error

	Repositories struct {
		dig.Out
		Close         DBCloser
		UserRepo      user.Repository
		ClassRepo     class.Repository
		MaterialRepo  material.Repository
		ExtensionRepo extension.Repository
	}

	ServerParams struct {
		dig.In
		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		UserSvc      user.Service
		ClassSvc     class.Service
		MaterialSvc  material.Service
		ExtensionSvc extension.Service
	}
)

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == EngineInMemory {
		db := inmemdb.Open()
		return Repositories{
			Close:         func() error { return nil },
			UserRepo:      inmemdb.NewUserRepository(db),
			ClassRepo:     inmemdb.NewClassRepository(db),
			MaterialRepo:  inmemdb.NewMaterialRepository(db),
			ExtensionRepo: inmemdb.NewExtensionRepository(db),
		}
	}

	setUp := func() (core.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Repositories{
		Close:         db.Close,
		UserRepo:      sqlxrepos.NewUserRepository(db),
		ClassRepo:     sqlxrepos.NewClassRepository(db),
		MaterialRepo:  sqlxrepos.NewMaterialRepository(db),
		ExtensionRepo: sqlxrepos.NewExtensionRepository(db),
	}
}

// newEmailService returns the console mailer in debug or without a sendgrid key.
func newEmailService(conf *core.Config, logger core.Logger) emailsvc.Service {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		UserSvc:      p.UserSvc,
		ClassSvc:     p.ClassSvc,
		MaterialSvc:  p.MaterialSvc,
		ExtensionSvc: p.ExtensionSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(func(svc emailsvc.Service) core.EmailService { return svc }))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(class.NewService))
	must(c.Provide(material.NewService))
	must(c.Provide(extension.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
