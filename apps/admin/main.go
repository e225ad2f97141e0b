package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	emailsvc "github.com/trezcool/masomo-materials/services/email"
	logsvc "github.com/trezcool/masomo-materials/services/logger"
	"github.com/trezcool/masomo-materials/storage/database"
	sqlxrepos "github.com/trezcool/masomo-materials/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	rl := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	rl.Enable(!conf.Debug)
	logger = rl

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	// set up services
	var mailSvc emailsvc.Service
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	classSvc := class.NewService(sqlxrepos.NewClassRepository(db))
	materialSvc := material.NewService(sqlxrepos.NewMaterialRepository(db), classSvc)

	// start CLI
	cli := commandLine{
		db:           db,
		out:          os.Stdout,
		validate:     validate,
		usrSvc:       usrSvc,
		classSvc:     classSvc,
		materialSvc:  materialSvc,
		extensionSvc: extension.NewService(sqlxrepos.NewExtensionRepository(db), materialSvc, classSvc, usrSvc, mailSvc, logger),
	}
	err = cli.run(os.Args)

	mailSvc.Wait()
	_ = db.Close()
	rl.Sync()

	if err != nil {
		if err != errHelp {
			fmt.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
