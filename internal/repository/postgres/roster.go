// Package postgres implements the roster and holiday stores against
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/atlasbank/greeting-engine/internal/dates"
	"github.com/atlasbank/greeting-engine/internal/domain"
)

// ErrNotFound is returned by single-row lookups that miss. Callers treat it
// as an absent result, not a fault.
var ErrNotFound = errors.New("postgres: not found")

// RosterRepo provides access to the people table.
type RosterRepo struct{ db *sql.DB }

// NewRosterRepo creates a Postgres-backed roster repository.
func NewRosterRepo(db *sql.DB) *RosterRepo { return &RosterRepo{db: db} }

const personColumns = `id, name, user_type, COALESCE(gender,''), COALESCE(age,0),
	COALESCE(interests,''), COALESCE(birth_date,''), COALESCE(start_date_bank,''),
	COALESCE(years_collaboration,0), COALESCE(telegram_chat_id,''), COALESCE(referral_code,''),
	COALESCE(company_name,''), COALESCE(position,''), COALESCE(segment,''),
	COALESCE(preferences,''), COALESCE(last_topic,'')`

func scanPerson(row interface{ Scan(...any) error }) (domain.Person, error) {
	var p domain.Person
	var prefs string
	err := row.Scan(
		&p.ID, &p.Name, &p.Role, &p.Gender, &p.Age,
		&p.Interests, &p.BirthDate, &p.StartDate,
		&p.YearsCollaboration, &p.ChatID, &p.ReferralCode,
		&p.CompanyName, &p.Position, &p.Segment,
		&prefs, &p.LastTopic,
	)
	if err != nil {
		return domain.Person{}, err
	}
	if prefs != "" {
		for _, part := range strings.Split(prefs, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.Preferences = append(p.Preferences, part)
			}
		}
	}
	return p, nil
}

// GetAll returns the full roster.
func (r *RosterRepo) GetAll(ctx context.Context) ([]domain.Person, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+personColumns+` FROM people`)
	if err != nil {
		return nil, fmt.Errorf("get all people: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

// FindByID returns one person or ErrNotFound.
func (r *RosterRepo) FindByID(ctx context.Context, id int64) (*domain.Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find person by id: %w", err)
	}
	return &p, nil
}

// FindByCode returns the person holding the given activation code.
func (r *RosterRepo) FindByCode(ctx context.Context, code string) (*domain.Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE referral_code = $1`, code))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find person by code: %w", err)
	}
	return &p, nil
}

// FindByChatID returns the person bound to the given messaging chat id.
func (r *RosterRepo) FindByChatID(ctx context.Context, chatID string) (*domain.Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE telegram_chat_id = $1`, chatID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find person by chat id: %w", err)
	}
	return &p, nil
}

// FindByBirthday returns everyone whose birth_date falls on the given month
// and day. Stored values are YYYY-MM-DD; the year fragment is never compared.
func (r *RosterRepo) FindByBirthday(ctx context.Context, dm dates.DayMonth) ([]domain.Person, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+personColumns+` FROM people
		WHERE birth_date IS NOT NULL AND birth_date != ''
		  AND SUBSTR(birth_date, 6, 2) = $1
		  AND SUBSTR(birth_date, 9, 2) = $2
	`, dm.Month, dm.Day)
	if err != nil {
		return nil, fmt.Errorf("find people by birthday: %w", err)
	}
	defer rows.Close()
	return collectPeople(rows)
}

// CodeExists reports whether any person already holds the given code. It is
// the uniqueness oracle for the referral minter.
func (r *RosterRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM people WHERE referral_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("code exists: %w", err)
	}
	return exists, nil
}

// BindChatID binds a messaging identity to the person holding the activation
// code. The guard on telegram_chat_id makes the bind one-shot: an already
// bound person is never silently rebound, and the return value is true iff
// exactly one row changed.
func (r *RosterRepo) BindChatID(ctx context.Context, code, chatID string) (bool, error) {
	if chatID == "" {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE people SET telegram_chat_id = $1
		WHERE referral_code = $2
		  AND (telegram_chat_id IS NULL OR telegram_chat_id = '')
	`, chatID, code)
	if err != nil {
		return false, fmt.Errorf("bind chat id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind chat id: %w", err)
	}
	return n == 1, nil
}

// BindChatIDByPersonID is the administrative variant keyed by identity.
func (r *RosterRepo) BindChatIDByPersonID(ctx context.Context, id int64, chatID string) (bool, error) {
	if chatID == "" {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE people SET telegram_chat_id = $1
		WHERE id = $2
		  AND (telegram_chat_id IS NULL OR telegram_chat_id = '')
	`, chatID, id)
	if err != nil {
		return false, fmt.Errorf("bind chat id by person id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind chat id by person id: %w", err)
	}
	return n == 1, nil
}

// Insert stores a new person and returns the assigned id. The unique
// constraint on referral_code backstops concurrent minting: a lost
// check-then-insert race surfaces here as an error instead of a duplicate.
func (r *RosterRepo) Insert(ctx context.Context, p *domain.Person) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO people
			(name, user_type, gender, age, interests, birth_date, start_date_bank,
			 years_collaboration, telegram_chat_id, referral_code,
			 company_name, position, segment, preferences, last_topic)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id
	`, p.Name, p.Role, p.Gender, p.Age, p.Interests, p.BirthDate, p.StartDate,
		p.YearsCollaboration, p.ChatID, p.ReferralCode,
		p.CompanyName, p.Position, p.Segment,
		strings.Join(p.Preferences, ","), p.LastTopic).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	return id, nil
}

func collectPeople(rows *sql.Rows) ([]domain.Person, error) {
	var out []domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
