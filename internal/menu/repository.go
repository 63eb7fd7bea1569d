package menu

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrHallNotFound is returned when a dining hall id is unknown.
var ErrHallNotFound = errors.New("dining hall not found")

// DateLayout is the storage format of menu dates.
const DateLayout = "2006-01-02"

// Query selects candidate items for one optimization request.
type Query struct {
	HallID     int64
	MealPeriod string
	Date       string
	Traits     []string // every trait must be present
	Allergens  []string // none of these may be present
}

// Repository persists dining halls and their daily menu items in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over an open connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AddHall registers a dining hall and returns it with its id.
func (r *Repository) AddHall(ctx context.Context, name, url string) (Hall, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO dining_halls (name, url) VALUES (?, ?)`, name, url)
	if err != nil {
		return Hall{}, fmt.Errorf("failed to insert dining hall: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Hall{}, fmt.Errorf("failed to read dining hall id: %w", err)
	}
	return Hall{ID: id, Name: name, URL: url}, nil
}

// ListHalls returns every registered hall ordered by id.
func (r *Repository) ListHalls(ctx context.Context) ([]Hall, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, url FROM dining_halls ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dining halls: %w", err)
	}
	defer rows.Close()

	var halls []Hall
	for rows.Next() {
		var h Hall
		if err := rows.Scan(&h.ID, &h.Name, &h.URL); err != nil {
			return nil, fmt.Errorf("failed to scan dining hall: %w", err)
		}
		halls = append(halls, h)
	}
	return halls, rows.Err()
}

// GetHall returns a single hall.
func (r *Repository) GetHall(ctx context.Context, id int64) (Hall, error) {
	var h Hall
	err := r.db.QueryRowContext(ctx, `SELECT id, name, url FROM dining_halls WHERE id = ?`, id).
		Scan(&h.ID, &h.Name, &h.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return Hall{}, fmt.Errorf("%w: %d", ErrHallNotFound, id)
	}
	if err != nil {
		return Hall{}, fmt.Errorf("failed to get dining hall: %w", err)
	}
	return h, nil
}

// ReplaceItems swaps a hall's menu for one date in a single transaction.
// Item ids are assigned by the database and written back into items.
func (r *Repository) ReplaceItems(ctx context.Context, hallID int64, date string, items []CandidateItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM menu_items WHERE dining_hall_id = ? AND menu_date = ?`, hallID, date); err != nil {
		return fmt.Errorf("failed to clear menu items: %w", err)
	}
	if err := insertItems(ctx, tx, hallID, date, items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit menu items: %w", err)
	}
	return nil
}

// SaveItems appends items to a hall's menu for one date.
func (r *Repository) SaveItems(ctx context.Context, hallID int64, date string, items []CandidateItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertItems(ctx, tx, hallID, date, items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit menu items: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, hallID int64, date string, items []CandidateItem) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO menu_items (
			dining_hall_id, menu_date, meal_period, station, name, components, traits, allergens,
			portion_size, convenience_score, calories_kcal, protein_g, total_fat_g,
			total_carbohydrate_g, sugars_g, sodium_mg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		if err := it.Validate(); err != nil {
			return err
		}
		components, _ := json.Marshal(nonNil(it.Components))
		traits, _ := json.Marshal(nonNil(it.Traits))
		allergens, _ := json.Marshal(nonNil(it.Allergens))

		res, err := stmt.ExecContext(ctx,
			hallID, date, strings.ToLower(it.MealPeriod), it.Station, it.Name,
			string(components), string(traits), string(allergens),
			it.PortionSize, int(it.Tier),
			it.CaloriesKcal, it.ProteinG, it.TotalFatG, it.TotalCarbohydrate, it.SugarsG, it.SodiumMg,
		)
		if err != nil {
			return fmt.Errorf("failed to insert menu item %q: %w", it.Name, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read menu item id: %w", err)
		}
		it.DiningHallID = hallID
	}
	return nil
}

// ListCandidates returns the items matching q in insertion order.
func (r *Repository) ListCandidates(ctx context.Context, q Query) ([]CandidateItem, error) {
	items, err := r.list(ctx, `dining_hall_id = ? AND menu_date = ? AND meal_period = ?`,
		q.HallID, q.Date, strings.ToLower(q.MealPeriod))
	if err != nil {
		return nil, err
	}

	filtered := items[:0]
	for _, it := range items {
		if matches(it, q) {
			filtered = append(filtered, it)
		}
	}
	return filtered, nil
}

// DefaultMenu returns the raw (fallback tier) items for a hall, date and period.
func (r *Repository) DefaultMenu(ctx context.Context, hallID int64, date, mealPeriod string) ([]CandidateItem, error) {
	return r.list(ctx, `dining_hall_id = ? AND menu_date = ? AND meal_period = ? AND convenience_score = ?`,
		hallID, date, strings.ToLower(mealPeriod), int(TierFallback))
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]CandidateItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dining_hall_id, meal_period, station, name, components, traits, allergens,
			portion_size, convenience_score, calories_kcal, protein_g, total_fat_g,
			total_carbohydrate_g, sugars_g, sodium_mg
		FROM menu_items WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	var items []CandidateItem
	for rows.Next() {
		var (
			it                           CandidateItem
			components, traits, allergen string
			tier                         int
		)
		if err := rows.Scan(&it.ID, &it.DiningHallID, &it.MealPeriod, &it.Station, &it.Name,
			&components, &traits, &allergen, &it.PortionSize, &tier,
			&it.CaloriesKcal, &it.ProteinG, &it.TotalFatG, &it.TotalCarbohydrate, &it.SugarsG, &it.SodiumMg,
		); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		it.Tier = Tier(tier)
		if err := decodeList(components, &it.Components); err != nil {
			return nil, err
		}
		if err := decodeList(traits, &it.Traits); err != nil {
			return nil, err
		}
		if err := decodeList(allergen, &it.Allergens); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Today returns the current menu date in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

func matches(it CandidateItem, q Query) bool {
	for _, t := range q.Traits {
		if !it.HasTrait(t) {
			return false
		}
	}
	for _, a := range q.Allergens {
		if it.HasAllergen(a) {
			return false
		}
	}
	return true
}

func decodeList(raw string, dst *[]string) error {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode list column: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
