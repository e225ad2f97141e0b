package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	"github.com/trezcool/masomo-materials/testutil"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv()
	logger = env.Logger
	out := new(bytes.Buffer)
	return &commandLine{
		out:          out,
		validate:     env.Validate,
		usrSvc:       env.UserSvc,
		classSvc:     env.ClassSvc,
		materialSvc:  env.MaterialSvc,
		extensionSvc: env.ExtensionSvc,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantValErr bool
	wantAnyErr bool
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	case tt.wantValErr:
		assert.True(t, core.IsValidationError(err), "got %v", err)
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, _ := setup(t)
	testutil.CreateUser(t, env.UserRepo, "Taken", "taken", "taken@test.cd", "", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Hero", "-username", "hero"}, wantErr: errHelp},
		{
			name: "unknown role", args: []string{"adduser", "-name", "Hero", "-username", "hero", "-role", "king"},
			extra: extra{pwd: "S3cure!pass"}, wantErrStr: `unknown role "king"`,
		},
		{
			name: "weak password", args: []string{"adduser", "-name", "Hero", "-username", "hero"},
			extra: extra{pwd: "password"}, wantAnyErr: true,
		},
		{
			name: "username taken", args: []string{"adduser", "-name", "Hero", "-username", "taken"},
			extra: extra{pwd: "S3cure!pass"}, wantValErr: true,
		},
		{
			name: "teacher created", args: []string{"adduser", "-name", "Teacher", "-email", "TEACHER@test.cd", "-role", "teacher"},
			extra: extra{pwd: "S3cure!pass"},
		},
		{
			name: "student created", args: []string{"adduser", "-name", "Hero", "-username", "hero"},
			extra: extra{pwd: "S3cure!pass"},
		},
	}
	for i, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tests[i].extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	teacher, err := env.UserSvc.GetByUsernameOrEmail(context.Background(), "teacher@test.cd")
	require.NoError(t, err)
	assert.True(t, teacher.IsTeacher())
	assert.True(t, teacher.IsActive)
	assert.NoError(t, teacher.CheckPassword("S3cure!pass"))

	student, err := env.UserSvc.GetByUsernameOrEmail(context.Background(), "hero")
	require.NoError(t, err)
	assert.True(t, student.IsStudent())
}

func Test_commandLine_classes(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	runCLITests(t, cli, []cliTest{
		{name: "addclass: no args", args: []string{"addclass"}, wantErr: errHelp},
		{name: "addclass: unknown teacher", args: []string{"addclass", "-name", "Maths", "-teacher", "lol"}, wantErr: user.ErrNotFound},
		{name: "addclass: not a teacher", args: []string{"addclass", "-name", "Maths", "-teacher", "hero"}, wantErrStr: "hero is not a teacher"},
		{name: "addclass", args: []string{"addclass", "-name", "Maths", "-teacher", "teacher"}},
	})

	cls := testutil.CreateClass(t, env.ClassRepo, "Physics", teacher.ID)

	runCLITests(t, cli, []cliTest{
		{name: "subscribe: no args", args: []string{"subscribe"}, wantErr: errHelp},
		{name: "subscribe: negative days", args: []string{"subscribe", "-class", cls.ID, "-student", "hero", "-days", "-1"}, wantErr: errHelp},
		{name: "subscribe: unknown class", args: []string{"subscribe", "-class", "lol", "-student", "hero"}, wantErr: class.ErrNotFound},
		{name: "subscribe: not a student", args: []string{"subscribe", "-class", cls.ID, "-student", "teacher"}, wantErrStr: "teacher is not a student"},
		{name: "subscribe", args: []string{"subscribe", "-class", cls.ID, "-student", "hero@test.cd", "-days", "30"}},
		{name: "addmaterial: no args", args: []string{"addmaterial"}, wantErr: errHelp},
		{
			name: "addmaterial: bad type", args: []string{"addmaterial", "-class", cls.ID, "-title", "L1", "-type", "audio", "-location", "x"},
			wantAnyErr: true,
		},
		{name: "addmaterial", args: []string{"addmaterial", "-class", cls.ID, "-title", "Lesson 1", "-location", "https://cdn.test/l1"}},
	})

	ok, err := env.ClassSvc.HasActiveSubscription(ctx, cls.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	materials, err := env.MaterialRepo.QueryMaterials(ctx, material.QueryFilter{ClassID: cls.ID}, nil)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, material.TypeVideo, materials[0].Type)
	assert.Contains(t, out.String(), "class Maths created")
}

func Test_commandLine_decide(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	extension.NowFunc = testutil.FixedClock(&now)
	defer func() { extension.NowFunc = time.Now }()

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	cls := testutil.CreateClass(t, env.ClassRepo, "Maths", teacher.ID)
	testutil.Subscribe(t, env.ClassRepo, cls.ID, student.ID, true, time.Time{})
	video := testutil.CreateMaterial(t, env.MaterialRepo, cls.ID, "Lesson 1", material.TypeVideo)
	video2 := testutil.CreateMaterial(t, env.MaterialRepo, cls.ID, "Lesson 2", material.TypeVideo)

	r1, err := env.ExtensionSvc.Submit(ctx, extension.NewRequest{MaterialID: video.ID, StudentID: student.ID, Reason: "was sick"})
	require.NoError(t, err)
	now = now.Add(time.Minute)
	r2, err := env.ExtensionSvc.Submit(ctx, extension.NewRequest{MaterialID: video2.ID, StudentID: student.ID, Reason: "no power"})
	require.NoError(t, err)

	runCLITests(t, cli, []cliTest{
		{name: "requests", args: []string{"requests"}},
		{name: "approve: no args", args: []string{"approve"}, wantErr: errHelp},
		{name: "approve: no approver", args: []string{"approve", "-id", r1.ID}, wantErr: errHelp},
		{name: "approve: student approver", args: []string{"approve", "-id", r1.ID, "-approver", "hero"}, wantErrStr: "hero is not a teacher or an admin"},
		{name: "approve: other teacher", args: []string{"approve", "-id", r1.ID, "-approver", "other"}, wantErr: extension.ErrForbidden},
		{name: "approve: unknown request", args: []string{"approve", "-id", "lol", "-approver", "teacher"}, wantErr: extension.ErrNotFound},
		{name: "approve", args: []string{"approve", "-id", r1.ID, "-approver", "teacher"}},
		{name: "approve: already decided", args: []string{"reject", "-id", r1.ID, "-approver", "admin"}, wantValErr: true},
		{name: "reject", args: []string{"reject", "-id", r2.ID, "-approver", "admin"}},
	})

	got, err := env.ExtensionRepo.GetRequest(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, extension.StatusApproved, got.Status)
	assert.Equal(t, teacher.ID, got.DecidedBy)

	got, err = env.ExtensionRepo.GetRequest(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, extension.StatusRejected, got.Status)
	assert.Equal(t, admin.ID, got.DecidedBy)

	va, err := env.MaterialSvc.VideoAccess(ctx, video.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, va.ExtensionApproved)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], r1.ID)
	assert.Contains(t, lines[2], r2.ID)
	assert.Contains(t, out.String(), "request "+r1.ID+" approved by Teacher")
}
