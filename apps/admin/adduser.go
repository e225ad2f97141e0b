package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core/user"
)

// addUser creates an active user.User with a single role.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, role, pwd string) error {
	r, err := user.ParseRole(role)
	if err != nil {
		return err
	}
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{r},
	}
	if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	_, _ = fmt.Fprintf(cli.out, "user %s created: %s\n", usr.DisplayName(), usr.ID)
	return nil
}

// findUser resolves a user by username or email and checks it holds the role.
func (cli *commandLine) findUser(ctx context.Context, uname string, hasRole func(user.User) bool, role string) (user.User, error) {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return user.User{}, err
	}
	if !hasRole(usr) {
		return user.User{}, fmt.Errorf("%s is not %s", uname, role)
	}
	return usr, nil
}

func isTeacher(u user.User) bool  { return u.IsTeacher() }
func isStudent(u user.User) bool  { return u.IsStudent() }
func isApprover(u user.User) bool { return u.IsStaff() }
