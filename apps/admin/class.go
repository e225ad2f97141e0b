package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/material"
)

func (cli *commandLine) addClass(ctx context.Context, name, teacherUname string) error {
	teacher, err := cli.findUser(ctx, teacherUname, isTeacher, "a teacher")
	if err != nil {
		return err
	}
	cls, err := cli.classSvc.Create(ctx, name, teacher.ID)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	_, _ = fmt.Fprintf(cli.out, "class %s created: %s\n", cls.Name, cls.ID)
	return nil
}

func (cli *commandLine) subscribe(ctx context.Context, classID, studentUname string, expiresAt time.Time) error {
	student, err := cli.findUser(ctx, studentUname, isStudent, "a student")
	if err != nil {
		return err
	}
	sub, err := cli.classSvc.Subscribe(ctx, classID, student.ID, expiresAt)
	if err != nil {
		return errors.Wrap(err, "subscribing")
	}
	until := "never expires"
	if !sub.ExpiresAt.IsZero() {
		until = "expires " + sub.ExpiresAt.Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(cli.out, "%s subscribed to %s (%s)\n", student.DisplayName(), sub.ClassID, until)
	return nil
}

func (cli *commandLine) addMaterial(ctx context.Context, nm material.NewMaterial) error {
	if err := nm.Validate(cli.validate); err != nil {
		return err
	}
	m, err := cli.materialSvc.Create(ctx, nm)
	if err != nil {
		return errors.Wrap(err, "creating material")
	}
	_, _ = fmt.Fprintf(cli.out, "%s %q created: %s\n", m.Type, m.Title, m.ID)
	return nil
}
