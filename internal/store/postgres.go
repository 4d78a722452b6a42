package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id=$1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email=$1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	user.BoardIDs, err = childIDs(ctx, s.db, `SELECT id FROM boards WHERE owner_id=$1 ORDER BY sort_order, created_at`, user.ID)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, password_hash, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grouped, err := groupedChildIDs(ctx, s.db, `SELECT owner_id, id FROM boards ORDER BY owner_id, sort_order, created_at`)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].BoardIDs = grouped[users[i].ID]
	}
	return users, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, id string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at FROM boards WHERE id=$1
	`, id).Scan(&board.ID, &board.Title, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	board.ListIDs, err = childIDs(ctx, s.db, `SELECT id FROM lists WHERE board_id=$1 ORDER BY sort_order, created_at`, board.ID)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsByOwner(ctx context.Context, ownerID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at
		FROM boards
		WHERE owner_id=$1
		ORDER BY sort_order, created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var board Board
		if err := rows.Scan(&board.ID, &board.Title, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, board)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grouped, err := groupedChildIDs(ctx, s.db, `
		SELECT l.board_id, l.id
		FROM lists l
		JOIN boards b ON b.id = l.board_id
		WHERE b.owner_id=$1
		ORDER BY l.board_id, l.sort_order, l.created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range boards {
		boards[i].ListIDs = grouped[boards[i].ID]
	}
	return boards, nil
}

// InsertBoard appends the board to the end of its owner's sequence.
func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM users WHERE id=$1 FOR UPDATE`, board.OwnerID); err != nil {
			return err
		}
		next, err := nextSortOrder(ctx, tx, `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM boards WHERE owner_id=$1`, board.OwnerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO boards (id, title, owner_id, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, board.ID, board.Title, board.OwnerID, next, board.CreatedAt); err != nil {
			return fmt.Errorf("insert board: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateBoardTitle(ctx context.Context, id, title string) error {
	return updateTitle(ctx, s.db, `UPDATE boards SET title=$2, updated_at=NOW() WHERE id=$1`, id, title)
}

// ReorderBoardLists replaces the board's list order. The new order must be
// a permutation of the lists currently on the board.
func (s *PostgresStore) ReorderBoardLists(ctx context.Context, boardID string, listIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM boards WHERE id=$1 FOR UPDATE`, boardID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, `SELECT id FROM lists WHERE board_id=$1 ORDER BY sort_order FOR UPDATE`, boardID)
		if err != nil {
			return err
		}
		if !isPermutation(current, listIDs) {
			return ErrInvalidOrder
		}
		for i, id := range listIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE lists SET sort_order=$2 WHERE id=$1`, id, i); err != nil {
				return fmt.Errorf("reorder list %s: %w", id, err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE boards SET updated_at=NOW() WHERE id=$1`, boardID)
		return err
	})
}

// DeleteBoard removes the board, its lists and their cards. The owner's
// sequence is derived from boards.owner_id, so it shrinks in the same statement.
func (s *PostgresStore) DeleteBoard(ctx context.Context, id string) error {
	return deleteRow(ctx, s.db, `DELETE FROM boards WHERE id=$1`, id)
}

func (s *PostgresStore) GetList(ctx context.Context, id string) (List, error) {
	var list List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, board_id, created_at, updated_at FROM lists WHERE id=$1
	`, id).Scan(&list.ID, &list.Title, &list.BoardID, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	list.CardIDs, err = childIDs(ctx, s.db, `SELECT id FROM cards WHERE list_id=$1 ORDER BY sort_order, created_at`, list.ID)
	if err != nil {
		return List{}, err
	}
	return list, nil
}

func (s *PostgresStore) ListListsByBoard(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, board_id, created_at, updated_at
		FROM lists
		WHERE board_id=$1
		ORDER BY sort_order, created_at
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var list List
		if err := rows.Scan(&list.ID, &list.Title, &list.BoardID, &list.CreatedAt, &list.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grouped, err := groupedChildIDs(ctx, s.db, `
		SELECT c.list_id, c.id
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id=$1
		ORDER BY c.list_id, c.sort_order, c.created_at
	`, boardID)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		lists[i].CardIDs = grouped[lists[i].ID]
	}
	return lists, nil
}

func (s *PostgresStore) InsertList(ctx context.Context, list List) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM boards WHERE id=$1 FOR UPDATE`, list.BoardID); err != nil {
			return err
		}
		next, err := nextSortOrder(ctx, tx, `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM lists WHERE board_id=$1`, list.BoardID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lists (id, title, board_id, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, list.ID, list.Title, list.BoardID, next, list.CreatedAt); err != nil {
			return fmt.Errorf("insert list: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE boards SET updated_at=NOW() WHERE id=$1`, list.BoardID)
		return err
	})
}

func (s *PostgresStore) UpdateListTitle(ctx context.Context, id, title string) error {
	return updateTitle(ctx, s.db, `UPDATE lists SET title=$2, updated_at=NOW() WHERE id=$1`, id, title)
}

func (s *PostgresStore) ReorderListCards(ctx context.Context, listID string, cardIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM lists WHERE id=$1 FOR UPDATE`, listID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, `SELECT id FROM cards WHERE list_id=$1 ORDER BY sort_order FOR UPDATE`, listID)
		if err != nil {
			return err
		}
		if !isPermutation(current, cardIDs) {
			return ErrInvalidOrder
		}
		for i, id := range cardIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE cards SET sort_order=$2 WHERE id=$1`, id, i); err != nil {
				return fmt.Errorf("reorder card %s: %w", id, err)
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE lists SET updated_at=NOW() WHERE id=$1`, listID)
		return err
	})
}

// MoveCards rewrites both card sequences and every moved card's parent in
// one transaction. Together the new sequences must hold exactly the cards
// the two lists held before.
func (s *PostgresStore) MoveCards(ctx context.Context, originID, destinationID string, originCards, destinationCards []string) error {
	if originID == destinationID {
		return s.ReorderListCards(ctx, destinationID, destinationCards)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Lock in id order so concurrent moves between the same pair cannot deadlock.
		locks := []string{originID, destinationID}
		sort.Strings(locks)
		for _, id := range locks {
			if err := lockRow(ctx, tx, `SELECT id FROM lists WHERE id=$1 FOR UPDATE`, id); err != nil {
				return err
			}
		}

		current, err := childIDs(ctx, tx, `SELECT id FROM cards WHERE list_id IN ($1, $2) ORDER BY id FOR UPDATE`, originID, destinationID)
		if err != nil {
			return err
		}
		next := make([]string, 0, len(originCards)+len(destinationCards))
		next = append(next, originCards...)
		next = append(next, destinationCards...)
		if !isPermutation(current, next) {
			return ErrInvalidOrder
		}

		if err := placeCards(ctx, tx, originID, originCards); err != nil {
			return err
		}
		if err := placeCards(ctx, tx, destinationID, destinationCards); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE lists SET updated_at=NOW() WHERE id IN ($1, $2)`, originID, destinationID)
		return err
	})
}

func placeCards(ctx context.Context, tx *sql.Tx, listID string, cardIDs []string) error {
	for i, id := range cardIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cards
			SET list_id=$2, sort_order=$3, updated_at=CASE WHEN list_id=$2 THEN updated_at ELSE NOW() END
			WHERE id=$1
		`, id, listID, i); err != nil {
			return fmt.Errorf("place card %s: %w", id, err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteList(ctx context.Context, id string) error {
	return deleteRow(ctx, s.db, `DELETE FROM lists WHERE id=$1`, id)
}

func (s *PostgresStore) GetCard(ctx context.Context, id string) (Card, error) {
	var card Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, list_id, created_at, updated_at FROM cards WHERE id=$1
	`, id).Scan(&card.ID, &card.Title, &card.ListID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *PostgresStore) ListCardsByList(ctx context.Context, listID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, list_id, created_at, updated_at
		FROM cards
		WHERE list_id=$1
		ORDER BY sort_order, created_at
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.ID, &card.Title, &card.ListID, &card.CreatedAt, &card.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) InsertCard(ctx context.Context, card Card) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM lists WHERE id=$1 FOR UPDATE`, card.ListID); err != nil {
			return err
		}
		next, err := nextSortOrder(ctx, tx, `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM cards WHERE list_id=$1`, card.ListID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, title, list_id, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, card.ID, card.Title, card.ListID, next, card.CreatedAt); err != nil {
			return fmt.Errorf("insert card: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE lists SET updated_at=NOW() WHERE id=$1`, card.ListID)
		return err
	})
}

func (s *PostgresStore) UpdateCardTitle(ctx context.Context, id, title string) error {
	return updateTitle(ctx, s.db, `UPDATE cards SET title=$2, updated_at=NOW() WHERE id=$1`, id, title)
}

func (s *PostgresStore) DeleteCard(ctx context.Context, id string) error {
	return deleteRow(ctx, s.db, `DELETE FROM cards WHERE id=$1`, id)
}

func (s *PostgresStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// PurgeExpiredTokens drops deny-list rows whose tokens can no longer verify.
func (s *PostgresStore) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return res.RowsAffected()
}

func lockRow(ctx context.Context, q queryer, query, id string) error {
	var locked string
	return q.QueryRowContext(ctx, query, id).Scan(&locked)
}

func nextSortOrder(ctx context.Context, q queryer, query, parentID string) (int, error) {
	var next int
	if err := q.QueryRowContext(ctx, query, parentID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next sort order: %w", err)
	}
	return next, nil
}

func childIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load child ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func groupedChildIDs(ctx context.Context, q queryer, query string, args ...any) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load grouped ids: %w", err)
	}
	defer rows.Close()

	grouped := map[string][]string{}
	for rows.Next() {
		var parentID, id string
		if err := rows.Scan(&parentID, &id); err != nil {
			return nil, fmt.Errorf("scan grouped id: %w", err)
		}
		grouped[parentID] = append(grouped[parentID], id)
	}
	return grouped, rows.Err()
}

func updateTitle(ctx context.Context, q queryer, query, id, title string) error {
	res, err := q.ExecContext(ctx, query, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return requireAffected(res)
}

func deleteRow(ctx context.Context, q queryer, query, id string) error {
	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
