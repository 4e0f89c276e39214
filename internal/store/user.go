package store

import (
	"context"

	"tzscheduler/internal/model"
)

const userCols = `id, name, is_admin, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	if err := row.Scan(&u.ID, &u.Name, &u.IsAdmin, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()
	return nil
}

// CreateUser inserts u. Names are unique ignoring case.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, is_admin, password_hash) VALUES ($1,$2,$3,$4)
		 RETURNING created_at, updated_at`,
		u.ID, u.Name, u.IsAdmin, u.PasswordHash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapErr(err, "User")
	}
	return nil
}

func (s *Store) UserByName(ctx context.Context, name string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(name) = lower($1)`, name), u)
	if err != nil {
		return nil, mapErr(err, "User")
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u)
	if err != nil {
		return nil, mapErr(err, "User")
	}
	return u, nil
}

// ListNonAdminUsers backs the participant picker.
func (s *Store) ListNonAdminUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE NOT is_admin ORDER BY lower(name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserNames maps each known id to its name. Unknown ids are absent.
func (s *Store) UserNames(ctx context.Context, ids []string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM users WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
