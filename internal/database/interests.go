package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/eventscout/internal/event"
)

// DefaultInterestWeight is the relevance boost of a new interest.
const DefaultInterestWeight = 5

const interestColumns = "id, title, description, keywords, weight, is_active, created_at, updated_at"

// InsertInterest creates a new interest. A weight of zero uses the default.
func (db *DB) InsertInterest(title, description string, keywords []string, weight int) (int64, error) {
	if weight == 0 {
		weight = DefaultInterestWeight
	}
	kwJSON, err := encodeKeywords(keywords)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO interests (title, description, keywords, weight) VALUES (?, ?, ?, ?)`,
		title, description, kwJSON, weight,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetAllInterests returns all interests.
func (db *DB) GetAllInterests() ([]Interest, error) {
	return db.queryInterests("SELECT " + interestColumns + " FROM interests ORDER BY created_at DESC, id DESC")
}

// GetActiveInterests returns only active interests.
func (db *DB) GetActiveInterests() ([]Interest, error) {
	return db.queryInterests("SELECT " + interestColumns + " FROM interests WHERE is_active = 1 ORDER BY created_at DESC, id DESC")
}

// ActiveEventInterests returns the active interests in the form the
// relevance scorer consumes.
func (db *DB) ActiveEventInterests() ([]event.Interest, error) {
	interests, err := db.GetActiveInterests()
	if err != nil {
		return nil, err
	}
	out := make([]event.Interest, len(interests))
	for i, in := range interests {
		out[i] = event.Interest{Title: in.Title, Keywords: in.Keywords, Weight: in.Weight}
	}
	return out, nil
}

// GetInterest returns a single interest by ID.
func (db *DB) GetInterest(id int64) (*Interest, error) {
	row := db.conn.QueryRow("SELECT "+interestColumns+" FROM interests WHERE id = ?", id)
	in, err := scanInterest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// UpdateInterest updates the non-nil fields of an interest.
func (db *DB) UpdateInterest(id int64, title, description *string, keywords []string, weight *int) error {
	var updates []string
	var args []any

	if title != nil {
		updates = append(updates, "title = ?")
		args = append(args, *title)
	}
	if description != nil {
		updates = append(updates, "description = ?")
		args = append(args, *description)
	}
	if keywords != nil {
		kwJSON, err := encodeKeywords(keywords)
		if err != nil {
			return err
		}
		updates = append(updates, "keywords = ?")
		args = append(args, kwJSON)
	}
	if weight != nil {
		updates = append(updates, "weight = ?")
		args = append(args, *weight)
	}
	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "updated_at = datetime('now')")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE interests SET %s WHERE id = ?", strings.Join(updates, ", "))
	_, err := db.conn.Exec(query, args...)
	return err
}

// ToggleInterest flips the active state of an interest.
func (db *DB) ToggleInterest(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE interests SET is_active = NOT is_active, updated_at = datetime('now') WHERE id = ?`, id,
	)
	return err
}

// DeleteInterest removes an interest.
func (db *DB) DeleteInterest(id int64) error {
	_, err := db.conn.Exec("DELETE FROM interests WHERE id = ?", id)
	return err
}

func (db *DB) queryInterests(query string, args ...any) ([]Interest, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interests []Interest
	for rows.Next() {
		in, err := scanInterest(rows)
		if err != nil {
			return nil, err
		}
		interests = append(interests, *in)
	}
	return interests, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInterest(s scanner) (*Interest, error) {
	var in Interest
	var kwJSON *string
	var active int
	if err := s.Scan(&in.ID, &in.Title, &in.Description, &kwJSON, &in.Weight, &active, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, err
	}
	in.IsActive = active != 0
	if kwJSON != nil {
		if err := json.Unmarshal([]byte(*kwJSON), &in.Keywords); err != nil {
			in.Keywords = nil
		}
	}
	return &in, nil
}

func encodeKeywords(keywords []string) (*string, error) {
	if keywords == nil {
		return nil, nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
