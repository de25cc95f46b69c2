package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlasbank/greeting-engine/internal/dates"
	"github.com/atlasbank/greeting-engine/internal/domain"
)

// HolidayRepo provides access to the holidays table.
type HolidayRepo struct{ db *sql.DB }

// NewHolidayRepo creates a Postgres-backed holiday repository.
func NewHolidayRepo(db *sql.DB) *HolidayRepo { return &HolidayRepo{db: db} }

const holidayColumns = `id, holiday_name, COALESCE(date_fixed,''), COALESCE(description,'')`

// GetAll returns every known holiday.
func (r *HolidayRepo) GetAll(ctx context.Context) ([]domain.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+holidayColumns+` FROM holidays ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get all holidays: %w", err)
	}
	defer rows.Close()
	return collectHolidays(rows)
}

// FindByID returns one holiday or ErrNotFound.
func (r *HolidayRepo) FindByID(ctx context.Context, id int64) (*domain.Holiday, error) {
	var h domain.Holiday
	err := r.db.QueryRowContext(ctx,
		`SELECT `+holidayColumns+` FROM holidays WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.DateFixed, &h.Description)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find holiday by id: %w", err)
	}
	return &h, nil
}

// FindByDate returns the holidays recurring on the given month and day.
// date_fixed may be stored either as "MM-DD" or as a full "YYYY-MM-DD"; both
// forms match the same calendar day and any stored year is ignored.
func (r *HolidayRepo) FindByDate(ctx context.Context, dm dates.DayMonth) ([]domain.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+holidayColumns+` FROM holidays
		WHERE (LENGTH(date_fixed) = 5
		       AND SUBSTR(date_fixed, 1, 2) = $1
		       AND SUBSTR(date_fixed, 4, 2) = $2)
		   OR (LENGTH(date_fixed) = 10
		       AND SUBSTR(date_fixed, 6, 2) = $1
		       AND SUBSTR(date_fixed, 9, 2) = $2)
	`, dm.Month, dm.Day)
	if err != nil {
		return nil, fmt.Errorf("find holidays by date: %w", err)
	}
	defer rows.Close()
	return collectHolidays(rows)
}

// Insert stores a new holiday and returns its id.
func (r *HolidayRepo) Insert(ctx context.Context, h *domain.Holiday) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO holidays (holiday_name, date_fixed, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, h.Name, h.DateFixed, h.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert holiday: %w", err)
	}
	return id, nil
}

// Upsert inserts the holiday or refreshes its description when the same
// (name, date) pair already exists. Used by the feed poller so repeated polls
// stay idempotent.
func (r *HolidayRepo) Upsert(ctx context.Context, h *domain.Holiday) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holidays (holiday_name, date_fixed, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (holiday_name, date_fixed)
		DO UPDATE SET description = EXCLUDED.description
	`, h.Name, h.DateFixed, h.Description)
	if err != nil {
		return fmt.Errorf("upsert holiday: %w", err)
	}
	return nil
}

func collectHolidays(rows *sql.Rows) ([]domain.Holiday, error) {
	var out []domain.Holiday
	for rows.Next() {
		var h domain.Holiday
		if err := rows.Scan(&h.ID, &h.Name, &h.DateFixed, &h.Description); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
