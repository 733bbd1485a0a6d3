package users

import (
	"context"
	"database/sql"

	"kashikari-backend/internal/platform/db"
)

type Store struct{ db db.DBTX }

func NewStore(d db.DBTX) *Store { return &Store{db: d} }

// Ensure はユーザーを登録し、初回接触だったかどうかを返す。
// MySQLの ON DUPLICATE KEY UPDATE は INSERT なら affected=1、UPDATE なら 2 を返す。
func (s *Store) Ensure(ctx context.Context, id, displayName string) (bool, error) {
	const q = `
	INSERT INTO users (user_id, display_name)
	VALUES (?, ?)
	ON DUPLICATE KEY UPDATE display_name = VALUES(display_name)`

	res, err := s.db.ExecContext(ctx, q, id, displayName)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	const q = `SELECT user_id, display_name, created_at FROM users WHERE user_id = ?`
	var u User
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.DisplayName, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
