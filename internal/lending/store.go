package lending

import (
	"context"
	"database/sql"
	"time"

	"kashikari-backend/internal/platform/db"
)

// 状態遷移はすべて「WHERE句に遷移元の状態条件を含む単文UPDATE」で行い、
// affected-rows で遷移の成否を判定する。レコード単位の原子性はこれで担保する。
type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

const selectColumns = `
	l.lending_id, l.owner_id, l.borrower_id, l.content, l.deadline,
	l.is_confirming_returned, l.returned_at, l.sent_url_to_borrower, l.created_at,
	ou.display_name, bu.display_name`

const selectFrom = `
	FROM lendings l
	JOIN users ou ON ou.user_id = l.owner_id
	LEFT JOIN users bu ON bu.user_id = l.borrower_id`

func scanLending(row interface{ Scan(dest ...any) error }) (*Lending, error) {
	var (
		m            Lending
		borrowerID   sql.NullString
		returnedAt   sql.NullTime
		borrowerName sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.OwnerID, &borrowerID, &m.Content, &m.Deadline,
		&m.IsConfirmingReturned, &returnedAt, &m.SentURLToBorrower, &m.CreatedAt,
		&m.OwnerName, &borrowerName,
	)
	if err != nil {
		return nil, err
	}
	if borrowerID.Valid {
		v := borrowerID.String
		m.BorrowerID = &v
	}
	if returnedAt.Valid {
		v := returnedAt.Time.UTC()
		m.ReturnedAt = &v
	}
	if borrowerName.Valid {
		v := borrowerName.String
		m.BorrowerName = &v
	}
	m.Deadline = m.Deadline.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) Insert(ctx context.Context, m *Lending) error {
	const q = `
	INSERT INTO lendings (lending_id, owner_id, content, deadline, created_at)
	VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, m.ID, m.OwnerID, m.Content, m.Deadline, m.CreatedAt)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*Lending, error) {
	q := `SELECT` + selectColumns + selectFrom + ` WHERE l.lending_id = ?`
	m, err := scanLending(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound("lending not found")
		}
		return nil, err
	}
	return m, nil
}

// AssociateBorrower は borrower_id 未設定の場合のみ設定する（first writer wins）。
func (s *Store) AssociateBorrower(ctx context.Context, id, borrowerID string) (bool, error) {
	const q = `
	UPDATE lendings SET borrower_id = ?
	WHERE lending_id = ? AND borrower_id IS NULL`
	res, err := s.db.ExecContext(ctx, q, borrowerID, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) MarkSentURL(ctx context.Context, id string) (bool, error) {
	const q = `
	UPDATE lendings SET sent_url_to_borrower = 1
	WHERE lending_id = ? AND sent_url_to_borrower = 0`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

// MarkReturned は returned_at を設定し、確認中フラグも同時に下ろす。
// returned_at が既に入っている行には触れない（first write wins）。
func (s *Store) MarkReturned(ctx context.Context, id string, at time.Time) (*Lending, error) {
	var m *Lending
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
		UPDATE lendings SET returned_at = ?, is_confirming_returned = 0
		WHERE lending_id = ? AND returned_at IS NULL`
		res, err := tx.ExecContext(ctx, q, at, id)
		if err != nil {
			return err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff != 1 {
			return ErrAlreadyReturned()
		}
		sel := `SELECT` + selectColumns + selectFrom + ` WHERE l.lending_id = ?`
		m, err = scanLending(tx.QueryRowContext(ctx, sel, id))
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound("lending not found")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// StartConfirming は OPEN_ASSOCIATED の貸出のみ確認中に遷移させる。
func (s *Store) StartConfirming(ctx context.Context, id string) (bool, error) {
	const q = `
	UPDATE lendings SET is_confirming_returned = 1
	WHERE lending_id = ?
	  AND borrower_id IS NOT NULL
	  AND returned_at IS NULL
	  AND is_confirming_returned = 0`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) FinishConfirming(ctx context.Context, id string) (bool, error) {
	const q = `
	UPDATE lendings SET is_confirming_returned = 0
	WHERE lending_id = ? AND is_confirming_returned = 1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (s *Store) list(ctx context.Context, where string, arg any) ([]Lending, error) {
	q := `SELECT` + selectColumns + selectFrom + where + ` ORDER BY l.created_at ASC, l.lending_id ASC`
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lending
	for rows.Next() {
		m, err := scanLending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Lending, error) {
	return s.list(ctx, ` WHERE l.owner_id = ?`, ownerID)
}

func (s *Store) ListByBorrower(ctx context.Context, borrowerID string) ([]Lending, error) {
	return s.list(ctx, ` WHERE l.borrower_id = ?`, borrowerID)
}

// ListDue は期限が until 以前で、借主が紐づいており、未返却かつ確認中でない貸出を返す。
// AWAITING_CONFIRMATION と CLOSED はWHERE句の構成上ここには決して現れない。
func (s *Store) ListDue(ctx context.Context, until time.Time) ([]Lending, error) {
	q := `SELECT` + selectColumns + selectFrom + `
	WHERE l.borrower_id IS NOT NULL
	  AND l.returned_at IS NULL
	  AND l.is_confirming_returned = 0
	  AND l.deadline <= ?
	ORDER BY l.owner_id ASC, l.created_at ASC, l.lending_id ASC`
	rows, err := s.db.QueryContext(ctx, q, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lending
	for rows.Next() {
		m, err := scanLending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
