package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{repo{db: db}}
}

func (r *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var found userRow
	err := r.getExec(exec).GetContext(ctx, &found,
		`SELECT `+userColumns+` FROM "user"
		WHERE (username = $1 OR email = $2) AND NOT (id = ANY($3::uuid[]))
		LIMIT 1`,
		null.NewString(username, username != ""),
		null.NewString(email, email != ""),
		pq.Array(validIDs(ids)),
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && found.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (r *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	_, err := r.getExec(exec).ExecContext(ctx,
		`INSERT INTO "user" (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Roles,
		row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (r *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	w := &where{}
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Username != "":
		w.add("username = ?", filter.Username)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		w.add("(username = ? OR email = ?)", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := r.getExec(exec).GetContext(ctx, &row, rebind(`SELECT `+userColumns+` FROM "user"`+w.String()+` LIMIT 1`), w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (r *userRepository) QueryUsers(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]user.User, error) {
	var rows []userRow
	err := r.getExec(exec).SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM "user" WHERE id = ANY($1::uuid[]) ORDER BY created_at`,
		pq.Array(validIDs(ids)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (r *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row := toUserRow(usr)
	res, err := r.getExec(exec).ExecContext(ctx,
		`UPDATE "user" SET name = $2, username = $3, email = $4, is_active = $5, roles = $6,
		password_hash = $7, updated_at = $8, last_login = $9
		WHERE id = $1`,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Roles,
		row.PasswordHash, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.user(), nil
}
