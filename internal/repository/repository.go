// Пакет repository — слой доступа к данным PostgreSQL.
// Таблица image_registry — единственный источник истины о том,
// какие изображения постоянны и активны. Все запросы — чистый SQL
// через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности.
	ErrConflict = errors.New("конфликт уникальности")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner — возможность открыть транзакцию.
// *pgxpool.Pool реализует его всегда; pgx.Tx — через savepoint.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// isUniqueViolation возвращает true для ошибки нарушения
// уникального ограничения PostgreSQL (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
