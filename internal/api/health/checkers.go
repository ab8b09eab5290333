package health

import (
	"context"
	"database/sql"
	"errors"
)

// Pinger is implemented by the ClickHouse and Postgres record backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// check is a named probe. All constructors below return one.
type check struct {
	name string
	fn   func(ctx context.Context) error
}

func (c check) Name() string { return c.name }

func (c check) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fn(ctx)
}

// NewSQLiteChecker pings the rule store.
func NewSQLiteChecker(db *sql.DB) Checker {
	return check{name: "sqlite", fn: func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not initialized")
		}
		return db.PingContext(ctx)
	}}
}

// NewPingChecker reports p under name.
func NewPingChecker(name string, p Pinger) Checker {
	return check{name: name, fn: func(ctx context.Context) error {
		if p == nil {
			return errors.New(name + " not configured")
		}
		return p.Ping(ctx)
	}}
}

// NewFuncChecker wraps a probe that takes no context, such as a connection
// status flag.
func NewFuncChecker(name string, probe func() error) Checker {
	return check{name: name, fn: func(context.Context) error { return probe() }}
}
