// Package sqlite implements the repository on top of sqlx and the modernc
// sqlite driver.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

// Ensure Repo implements the Repository interface
var _ linkpulse.Repository = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}
