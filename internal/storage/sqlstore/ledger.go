package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/abuiliazeed/financial-projections/internal/domain/models"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

type ledgerTables struct {
	types      string
	entries    string
	typeColumn string
}

var ledgers = map[models.Kind]ledgerTables{
	models.KindExpense: {types: "expense_types", entries: "expenses", typeColumn: "expense_type_id"},
	models.KindRevenue: {types: "revenue_types", entries: "revenues", typeColumn: "revenue_type_id"},
}

func tablesFor(kind models.Kind) (ledgerTables, error) {
	t, ok := ledgers[kind]
	if !ok {
		return ledgerTables{}, fmt.Errorf("unknown ledger kind %q", kind)
	}
	return t, nil
}

func (s *Storage) ListTypes(ctx context.Context, kind models.Kind, userID int64) ([]models.EntryType, error) {
	const op = "storage.sqlstore.ListTypes"

	t, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(fmt.Sprintf("SELECT id, name FROM %s WHERE user_id = ? ORDER BY id", t.types)),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	types := make([]models.EntryType, 0)
	for rows.Next() {
		et := models.EntryType{UserID: userID, Kind: kind}
		if err := rows.Scan(&et.ID, &et.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		types = append(types, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return types, nil
}

func (s *Storage) CreateType(ctx context.Context, kind models.Kind, userID int64, name string) (models.EntryType, error) {
	const op = "storage.sqlstore.CreateType"

	t, err := tablesFor(kind)
	if err != nil {
		return models.EntryType{}, fmt.Errorf("%s: %w", op, err)
	}

	et := models.EntryType{UserID: userID, Kind: kind, Name: name}
	err = s.db.QueryRowContext(ctx,
		s.rebind(fmt.Sprintf("INSERT INTO %s (user_id, name) VALUES (?, ?) RETURNING id", t.types)),
		userID, name,
	).Scan(&et.ID)
	if err != nil {
		return models.EntryType{}, fmt.Errorf("%s: %w", op, err)
	}

	return et, nil
}

// UpdateType renames a type. A type owned by someone else is reported as
// storage.ErrNotFound.
func (s *Storage) UpdateType(ctx context.Context, kind models.Kind, userID, id int64, name string) error {
	const op = "storage.sqlstore.UpdateType"

	t, err := tablesFor(kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(fmt.Sprintf("UPDATE %s SET name = ? WHERE id = ? AND user_id = ?", t.types)),
		name, id, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res)
}

// DeleteType removes a type. It fails with storage.ErrTypeInUse while
// entries still point at it.
func (s *Storage) DeleteType(ctx context.Context, kind models.Kind, userID, id int64) error {
	const op = "storage.sqlstore.DeleteType"

	t, err := tablesFor(kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", t.types)),
		id, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrTypeInUse)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res)
}

func (s *Storage) ListEntries(ctx context.Context, kind models.Kind, userID int64, filter models.EntryFilter) ([]models.Entry, error) {
	const op = "storage.sqlstore.ListEntries"

	t, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var q strings.Builder
	fmt.Fprintf(&q, `SELECT e.id, e.year, e.month, e.%[3]s, t.name, e.amount_cents
		FROM %[1]s e
		JOIN %[2]s t ON t.id = e.%[3]s AND t.user_id = e.user_id
		WHERE e.user_id = ?`, t.entries, t.types, t.typeColumn)
	args := []any{userID}

	if filter.Year != 0 {
		q.WriteString(" AND e.year = ?")
		args = append(args, filter.Year)
	}
	if filter.Month != 0 {
		q.WriteString(" AND e.month = ?")
		args = append(args, filter.Month)
	}
	if filter.TypeID != 0 {
		fmt.Fprintf(&q, " AND e.%s = ?", t.typeColumn)
		args = append(args, filter.TypeID)
	}
	q.WriteString(" ORDER BY e.year, e.month, e.id")

	rows, err := s.db.QueryContext(ctx, s.rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := make([]models.Entry, 0)
	for rows.Next() {
		e := models.Entry{UserID: userID, Kind: kind}
		if err := rows.Scan(&e.ID, &e.Year, &e.Month, &e.TypeID, &e.TypeName, &e.Amount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// CreateEntry inserts an entry only if its type belongs to the same user.
// The ownership check and the insert are one statement, and the foreign key
// keeps the type from disappearing underneath it.
func (s *Storage) CreateEntry(ctx context.Context, e models.Entry) (models.Entry, error) {
	const op = "storage.sqlstore.CreateEntry"

	t, err := tablesFor(e.Kind)
	if err != nil {
		return models.Entry{}, fmt.Errorf("%s: %w", op, err)
	}

	// Select-list parameters carry no column type, so Postgres needs the casts.
	query := fmt.Sprintf(`INSERT INTO %[1]s (user_id, year, month, %[3]s, amount_cents)
		SELECT CAST(? AS BIGINT), CAST(? AS INTEGER), CAST(? AS INTEGER), t.id, CAST(? AS BIGINT)
		FROM %[2]s t WHERE t.id = ? AND t.user_id = ?
		RETURNING id`, t.entries, t.types, t.typeColumn)

	err = s.db.QueryRowContext(ctx, s.rebind(query),
		e.UserID, e.Year, e.Month, int64(e.Amount), e.TypeID, e.UserID,
	).Scan(&e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, fmt.Errorf("%s: %w", op, storage.ErrInvalidType)
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// UpdateEntry replaces the fields of an existing entry. It reports
// storage.ErrNotFound when the entry is not the caller's and
// storage.ErrInvalidType when the new type is not.
func (s *Storage) UpdateEntry(ctx context.Context, e models.Entry) error {
	const op = "storage.sqlstore.UpdateEntry"

	t, err := tablesFor(e.Kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var found int64
		err := tx.QueryRowContext(ctx,
			s.rebind(fmt.Sprintf("SELECT id FROM %s WHERE id = ? AND user_id = ?", t.entries)),
			e.ID, e.UserID,
		).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		query := fmt.Sprintf(`UPDATE %[1]s SET year = ?, month = ?, %[3]s = ?, amount_cents = ?
			WHERE id = ? AND user_id = ?
			AND EXISTS (SELECT 1 FROM %[2]s t WHERE t.id = ? AND t.user_id = ?)`,
			t.entries, t.types, t.typeColumn)

		res, err := tx.ExecContext(ctx, s.rebind(query),
			e.Year, e.Month, e.TypeID, int64(e.Amount), e.ID, e.UserID, e.TypeID, e.UserID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrInvalidType
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) DeleteEntry(ctx context.Context, kind models.Kind, userID, id int64) error {
	const op = "storage.sqlstore.DeleteEntry"

	t, err := tablesFor(kind)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", t.entries)),
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return affectedOne(op, res)
}

// MonthlyTotals sums a user's entries of one kind per month of year. Months
// without entries are absent from the result.
func (s *Storage) MonthlyTotals(ctx context.Context, kind models.Kind, userID int64, year int) (map[int]models.Money, error) {
	const op = "storage.sqlstore.MonthlyTotals"

	t, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(fmt.Sprintf(`SELECT month, COALESCE(SUM(amount_cents), 0)
			FROM %s
			WHERE user_id = ? AND year = ?
			GROUP BY month`, t.entries)),
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	totals := make(map[int]models.Money, 12)
	for rows.Next() {
		var (
			month int
			total int64
		)
		if err := rows.Scan(&month, &total); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		totals[month] = models.Money(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return totals, nil
}

func affectedOne(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
