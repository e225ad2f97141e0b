package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof on the debug host

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	dig_container "github.com/trezcool/masomo-materials/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-materials/apps/api/echo"
	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	emailsvc "github.com/trezcool/masomo-materials/services/email"
)

type app struct {
	conf       *core.Config
	zl         *zap.Logger
	logger     core.Logger
	dbLogger   core.Logger
	closeDB    dig_container.DBCloser
	mailSvc    emailsvc.Service
	validate   *validator.Validate
	translator ut.Translator
	server     *echoapi.Server
}

func main() {
	c := dig_container.New()
	must(c.Invoke(func(
		conf *core.Config,
		zl *zap.Logger,
		logger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		closeDB dig_container.DBCloser,
		mailSvc emailsvc.Service,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		a := app{
			conf:       conf,
			zl:         zl,
			logger:     logger,
			dbLogger:   dbLoggerParam.Logger,
			closeDB:    closeDB,
			mailSvc:    mailSvc,
			validate:   validate,
			translator: translator,
			server:     server,
		}
		a.run()
	}))
}

func (a app) run() {
	a.logger.Info(fmt.Sprintf("materials API starting: %s (store: %s)", a.conf, a.conf.Database.Engine))
	defer func() { _ = a.zl.Sync() }()

	core.InitValidators(a.validate, a.translator)
	user.InitValidators(a.validate, a.translator)
	core.ParseEmailTemplates(a.conf, a.logger)

	defer func() {
		if err := a.closeDB(); err != nil {
			a.dbLogger.Fatal("closing database", err)
		}
	}()
	// requests and decisions notify by email in the background
	defer a.mailSvc.Wait()
	defer a.logger.Info("materials API stopped")

	a.serveDebug()
	go a.server.Start()

	select {
	case err := <-a.server.Errors():
		a.logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-a.server.ShutdownSignal():
		a.logger.Info(fmt.Sprintf("%v: shutting down", sig))

		ctx, cancel := context.WithTimeout(context.Background(), a.conf.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = a.server.Close(); err != nil {
				a.logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// serveDebug exposes /debug/vars and /debug/pprof on the debug host.
func (a app) serveDebug() {
	expvar.NewString("build").Set(a.conf.Build)
	expvar.NewString("env").Set(a.conf.Env)
	expvar.NewString("store").Set(a.conf.Database.Engine)
	expvar.Publish("window", expvar.Func(func() interface{} {
		return map[string]string{
			"standard": material.StandardWindow.String(),
			"extended": material.ExtendedWindow.String(),
		}
	}))

	go func() {
		if err := http.ListenAndServe(a.conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			a.logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
