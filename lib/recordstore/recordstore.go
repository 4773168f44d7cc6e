// Package recordstore persists extracted case records as JSON keyed by
// county and case number. The blob sink keeps the raw page, this keeps
// the structured view consumers query.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config points at either a local database file or a remote libsql
// instance. Url wins when both are set.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) OpenDB() (*sql.DB, error) {
	if c.Url == "" {
		if c.File == "" {
			return nil, fmt.Errorf("a record database file or url is required")
		}
		return sql.Open("libsql", "file:"+c.File)
	}

	values := url.Values{}
	if c.AuthToken != "" {
		values.Add("authToken", c.AuthToken)
	}
	dsn := c.Url
	if len(values) > 0 {
		dsn += "?" + values.Encode()
	}
	return sql.Open("libsql", dsn)
}

const Schema = `
CREATE TABLE IF NOT EXISTS case_records (
	county      TEXT NOT NULL,
	case_number TEXT NOT NULL,
	scraped_at  INTEGER NOT NULL,
	record      TEXT NOT NULL,
	PRIMARY KEY (county, case_number)
);
`

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	_, err := db.Exec(Schema)
	if err != nil {
		return Store{}, err
	}
	return Store{db: db}, nil
}

// Put upserts one record; the latest scrape of a case wins.
func (s Store) Put(ctx context.Context, county, caseNumber string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO case_records (county, case_number, scraped_at, record)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (county, case_number)
		 DO UPDATE SET scraped_at = excluded.scraped_at, record = excluded.record`,
		county, caseNumber, time.Now().Unix(), string(encoded),
	)
	return err
}

// Get unmarshals the stored record for the case into out. Returns
// sql.ErrNoRows when the case has not been recorded.
func (s Store) Get(ctx context.Context, county, caseNumber string, out any) error {
	var encoded string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT record FROM case_records WHERE county = ? AND case_number = ?`,
		county, caseNumber,
	).Scan(&encoded)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(encoded), out)
}

// List returns the case numbers recorded for a county.
func (s Store) List(ctx context.Context, county string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT case_number FROM case_records WHERE county = ? ORDER BY case_number`,
		county,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var caseNumber string
		if err := rows.Scan(&caseNumber); err != nil {
			return nil, err
		}
		out = append(out, caseNumber)
	}
	return out, rows.Err()
}
