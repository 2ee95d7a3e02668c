package db

import (
	"github.com/pkg/errors"

	"github.com/granary-ai/granary/internal/profile"
	"github.com/granary-ai/granary/store"
	"github.com/granary-ai/granary/store/db/postgres"
	"github.com/granary-ai/granary/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
// SQLite serves development and single-node setups, PostgreSQL serves
// production and additionally backs vector search through pgvector.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
