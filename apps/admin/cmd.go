package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB
	out      io.Writer
	validate *validator.Validate

	usrSvc       user.Service
	classSvc     class.Service
	materialSvc  material.Service
	extensionSvc extension.Service
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -role admin|teacher|student - create a user")
	_, _ = fmt.Fprintln(cli.out, "  addclass -name NAME -teacher USERNAME - create a class")
	_, _ = fmt.Fprintln(cli.out, "  subscribe -class ID -student USERNAME [-days N] - subscribe a student to a class")
	_, _ = fmt.Fprintln(cli.out, "  addmaterial -class ID -title TITLE -type video|pdf|link -location URL - record a material")
	_, _ = fmt.Fprintln(cli.out, "  requests [-status pending|approved|rejected] - list extension requests")
	_, _ = fmt.Fprintln(cli.out, "  approve|reject -id REQUEST_ID -approver USERNAME - decide an extension request")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", "student", "One of admin, teacher or student.")

	addClassCmd := flag.NewFlagSet("addclass", flag.ExitOnError)
	addClassName := addClassCmd.String("name", "", "The class name.")
	addClassTeacher := addClassCmd.String("teacher", "", "The teacher's username or email.")

	subscribeCmd := flag.NewFlagSet("subscribe", flag.ExitOnError)
	subscribeClass := subscribeCmd.String("class", "", "The class ID.")
	subscribeStudent := subscribeCmd.String("student", "", "The student's username or email.")
	subscribeDays := subscribeCmd.Int("days", 0, "Days until the subscription expires (0: never).")

	addMaterialCmd := flag.NewFlagSet("addmaterial", flag.ExitOnError)
	addMaterialClass := addMaterialCmd.String("class", "", "The class ID.")
	addMaterialTitle := addMaterialCmd.String("title", "", "The material title.")
	addMaterialType := addMaterialCmd.String("type", string(material.TypeVideo), "One of video, pdf or link.")
	addMaterialLocation := addMaterialCmd.String("location", "", "Where the content is stored (URL or storage key).")

	requestsCmd := flag.NewFlagSet("requests", flag.ExitOnError)
	requestsStatus := requestsCmd.String("status", string(extension.StatusPending), "Filter by status (empty: all).")

	decideCmd := flag.NewFlagSet(args[1], flag.ExitOnError)
	decideID := decideCmd.String("id", "", "The extension request ID.")
	decideApprover := decideCmd.String("approver", "", "The deciding teacher's or admin's username or email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		_, _ = fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		_, _ = fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserUname, *addUserEmail, *addUserRole, string(pwd))

	case "addclass":
		if err := addClassCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addClassName == "" || *addClassTeacher == "" {
			addClassCmd.Usage()
			return errHelp
		}
		return cli.addClass(ctx, *addClassName, *addClassTeacher)

	case "subscribe":
		if err := subscribeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *subscribeClass == "" || *subscribeStudent == "" || *subscribeDays < 0 {
			subscribeCmd.Usage()
			return errHelp
		}
		var expiresAt time.Time
		if *subscribeDays > 0 {
			expiresAt = class.NowFunc().AddDate(0, 0, *subscribeDays)
		}
		return cli.subscribe(ctx, *subscribeClass, *subscribeStudent, expiresAt)

	case "addmaterial":
		if err := addMaterialCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addMaterialClass == "" || *addMaterialTitle == "" || *addMaterialLocation == "" {
			addMaterialCmd.Usage()
			return errHelp
		}
		return cli.addMaterial(ctx, material.NewMaterial{
			ClassID:  *addMaterialClass,
			Title:    *addMaterialTitle,
			Type:     material.ContentType(*addMaterialType),
			Location: *addMaterialLocation,
		})

	case "requests":
		if err := requestsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.listRequests(ctx, extension.Status(strings.ToLower(*requestsStatus)))

	case "approve", "reject":
		if err := decideCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *decideID == "" || *decideApprover == "" {
			decideCmd.Usage()
			return errHelp
		}
		return cli.decide(ctx, *decideID, *decideApprover, args[1] == "approve")

	default:
		cli.printUsage()
		return errHelp
	}
}
