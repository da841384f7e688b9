package database

import (
	"database/sql"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed-catalog.yaml
var seedCatalog []byte

// SeedClass is one bookable studio class in the seed catalog.
type SeedClass struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Instructor   string `yaml:"instructor"`
	Duration     int    `yaml:"duration"`
	ActivityType string `yaml:"activity_type"`
	Level        string `yaml:"level"`
}

// SeedActivityType is one free-activity type in the seed catalog.
type SeedActivityType struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Catalog is the parsed seed catalog.
type Catalog struct {
	ActivityTypes []SeedActivityType `yaml:"activity_types"`
	Classes       []SeedClass        `yaml:"classes"`
}

// SeedCatalog parses the embedded seed catalog.
func SeedCatalog() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(seedCatalog, &c); err != nil {
		return nil, fmt.Errorf("database: parse seed catalog: %w", err)
	}
	return &c, nil
}

// Seed inserts the class catalog and activity types. Existing rows are left
// untouched so operator edits survive restarts.
func Seed(db *sql.DB) error {
	c, err := SeedCatalog()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("database: begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, at := range c.ActivityTypes {
		if _, err := tx.Exec(
			`INSERT INTO activity_types (id, name, description) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			at.ID, at.Name, at.Description,
		); err != nil {
			return fmt.Errorf("database: seed activity type %q: %w", at.ID, err)
		}
	}

	for _, cl := range c.Classes {
		if _, err := tx.Exec(
			`INSERT INTO workouts (id, name, description, instructor, duration, type, activity_type, level, bookable)
			 VALUES (?, ?, ?, ?, ?, 'class', ?, ?, 1)
			 ON CONFLICT(id) DO NOTHING`,
			cl.ID, cl.Name, cl.Description, cl.Instructor, cl.Duration, cl.ActivityType, cl.Level,
		); err != nil {
			return fmt.Errorf("database: seed class %q: %w", cl.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("database: commit seed: %w", err)
	}
	return nil
}
