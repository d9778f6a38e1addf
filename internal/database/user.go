package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// User — плательщик, идентифицируемый Telegram ID. Баланс хранится в
// валюте магазина и пополняется только через Settle.
type User struct {
	ID         int64     `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Username   *string   `db:"username"`
	Balance    float64   `db:"balance"`
	CreatedAt  time.Time `db:"created_at"`
}

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Balance, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (ur *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	buildSelect := sq.Select("id", "telegram_id", "username", "balance", "created_at").
		From("users").
		Where(sq.Eq{"telegram_id": telegramID}).
		PlaceholderFormat(sq.Dollar)

	sql, args, err := buildSelect.ToSql()
	if err != nil {
		return nil, err
	}

	user, err := scanUser(ur.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// GetOrCreate возвращает пользователя, создавая запись при первом
// обращении. Username обновляется при каждом вызове — в Telegram его
// можно сменить.
func (ur *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username *string) (*User, error) {
	buildUpsert := sq.Insert("users").
		Columns("telegram_id", "username").
		Values(telegramID, username).
		Suffix("ON CONFLICT (telegram_id) DO UPDATE SET username = EXCLUDED.username").
		Suffix("RETURNING id, telegram_id, username, balance, created_at").
		PlaceholderFormat(sq.Dollar)

	sql, args, err := buildUpsert.ToSql()
	if err != nil {
		return nil, err
	}

	user, err := scanUser(ur.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}
