// Package db resolves a Profile's StoreURI to a concrete store.Driver
// implementation, mirroring cmd/divinesense/main.go's
// db.NewDBDriver(profile) call site in the teacher.
package db

import (
	"fmt"

	"github.com/hrygo/taskmesh/internal/profile"
	"github.com/hrygo/taskmesh/store"
	"github.com/hrygo/taskmesh/store/db/postgres"
	"github.com/hrygo/taskmesh/store/db/sqlite"
)

// NewDriver opens the backend selected by profile.Driver() and returns
// it as a store.Driver, ready to be wrapped in store.New.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	switch p.Driver() {
	case "postgres":
		return postgres.Open(p.StoreURI)
	case "sqlite":
		return sqlite.Open(p.StoreURI)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", p.Driver())
	}
}
