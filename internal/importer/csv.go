// Package importer loads roster and holiday data in bulk: CSV files for the
// initial fill and an RSS/Atom corporate-calendar feed for ongoing holiday
// updates.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/atlasbank/greeting-engine/internal/domain"
	"github.com/atlasbank/greeting-engine/internal/referral"
)

// PersonWriter persists imported people.
type PersonWriter interface {
	Insert(ctx context.Context, p *domain.Person) (int64, error)
}

// HolidayWriter persists imported holidays idempotently.
type HolidayWriter interface {
	Upsert(ctx context.Context, h *domain.Holiday) error
}

// Importer drives CSV imports. Rows without an activation code get one
// minted before persistence.
type Importer struct {
	people   PersonWriter
	holidays HolidayWriter
	minter   *referral.Minter
}

// New creates an Importer.
func New(people PersonWriter, holidays HolidayWriter, minter *referral.Minter) *Importer {
	return &Importer{people: people, holidays: holidays, minter: minter}
}

// ImportPeople reads a people CSV (header row, columns named after the data
// model) and inserts each row. Malformed rows are logged and skipped; the
// returned count is the number of rows actually stored.
func (im *Importer) ImportPeople(ctx context.Context, r io.Reader) (int, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return 0, err
	}

	imported := 0
	for i, row := range rows {
		p, err := personFromRow(header, row)
		if err != nil {
			log.Printf("[Importer] row %d skipped: %v", i+2, err)
			continue
		}
		if p.ReferralCode == "" {
			code, err := im.minter.Mint(ctx, referral.Seed{
				Name:      p.Name,
				BirthDate: p.BirthDate,
				StartDate: p.StartDate,
			})
			if err != nil {
				return imported, fmt.Errorf("importer: mint code for %q: %w", p.Name, err)
			}
			p.ReferralCode = code
		}
		if _, err := im.people.Insert(ctx, &p); err != nil {
			log.Printf("[Importer] row %d insert failed: %v", i+2, err)
			continue
		}
		imported++
	}
	log.Printf("[Importer] imported %d/%d people", imported, len(rows))
	return imported, nil
}

// ImportHolidays reads a holidays CSV and upserts each row.
func (im *Importer) ImportHolidays(ctx context.Context, r io.Reader) (int, error) {
	rows, header, err := readCSV(r)
	if err != nil {
		return 0, err
	}

	imported := 0
	for i, row := range rows {
		h := domain.Holiday{
			Name:        field(header, row, "holiday_name"),
			DateFixed:   field(header, row, "date_fixed"),
			Description: field(header, row, "description"),
		}
		if h.Name == "" || h.DateFixed == "" {
			log.Printf("[Importer] holiday row %d skipped: missing name or date", i+2)
			continue
		}
		if err := im.holidays.Upsert(ctx, &h); err != nil {
			log.Printf("[Importer] holiday row %d upsert failed: %v", i+2, err)
			continue
		}
		imported++
	}
	return imported, nil
}

func readCSV(r io.Reader) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("importer: read csv: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("importer: empty file")
	}
	header := map[string]int{}
	for i, name := range all[0] {
		header[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return all[1:], header, nil
}

func field(header map[string]int, row []string, name string) string {
	i, ok := header[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func personFromRow(header map[string]int, row []string) (domain.Person, error) {
	p := domain.Person{
		Name:         field(header, row, "name"),
		Role:         domain.Role(field(header, row, "user_type")),
		Gender:       domain.Gender(field(header, row, "gender")),
		Interests:    field(header, row, "interests"),
		BirthDate:    field(header, row, "birth_date"),
		StartDate:    field(header, row, "start_date_bank"),
		ChatID:       field(header, row, "telegram_chat_id"),
		ReferralCode: field(header, row, "referral_code"),
		CompanyName:  field(header, row, "company_name"),
		Position:     field(header, row, "position"),
		Segment:      domain.Segment(field(header, row, "segment")),
		LastTopic:    field(header, row, "last_topic"),
	}
	if p.Name == "" {
		return p, fmt.Errorf("missing name")
	}
	if v := field(header, row, "age"); v != "" {
		age, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("bad age %q", v)
		}
		p.Age = age
	}
	if v := field(header, row, "years_collaboration"); v != "" {
		years, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("bad years_collaboration %q", v)
		}
		p.YearsCollaboration = years
	}
	if v := field(header, row, "preferences"); v != "" {
		for _, part := range strings.Split(v, ";") {
			if part = strings.TrimSpace(part); part != "" {
				p.Preferences = append(p.Preferences, part)
			}
		}
	}
	if p.Role == "" {
		p.Role = domain.RoleClient
	}
	return p, nil
}
