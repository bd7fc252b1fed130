package postgres

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/config"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/pseudomuto/postgit/pkg/utils"
)

// Client manages databases on PostgreSQL servers. It holds no connection: every operation
// opens its own and closes it before returning, so a Client is safe to share.
type Client struct {
	maintenanceDB string
}

// NewClient creates a Client that issues CREATE/DROP DATABASE from maintenanceDB. An empty
// name selects the "postgres" database.
//
// Example:
//
//	client := postgres.NewClient("")
//	db := config.Postgres{Host: "localhost", Port: 5432, User: "postgres", DBName: "scratch"}
//
//	if err := client.Create(ctx, db); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Drop(ctx, db)
//
//	err := client.LoadScript(ctx, db, "create table foo (id int);")
func NewClient(maintenanceDB string) *Client {
	if maintenanceDB == "" {
		maintenanceDB = consts.DefaultMaintenanceDatabase
	}

	return &Client{maintenanceDB: maintenanceDB}
}

// Create creates db.DBName on db's server. It fails if the database already exists.
func (c *Client) Create(ctx context.Context, db config.Postgres) error {
	if err := utils.ValidateIdentifier(db.DBName); err != nil {
		return errors.Wrap(err, "create database")
	}

	slog.Debug("Creating database", "database", db.String())
	return c.admin(ctx, "create", db, "create database "+utils.QuoteIdentifier(db.DBName))
}

// Drop drops db.DBName on db's server, terminating open sessions. Dropping a missing database
// succeeds.
func (c *Client) Drop(ctx context.Context, db config.Postgres) error {
	if err := utils.ValidateIdentifier(db.DBName); err != nil {
		return errors.Wrap(err, "drop database")
	}

	slog.Debug("Dropping database", "database", db.String())
	return c.admin(ctx, "drop", db, "drop database if exists "+utils.QuoteIdentifier(db.DBName)+" (force)")
}

// LoadScript runs script against db in a single transaction. The script may hold any number of
// statements. When one fails the whole script is rolled back and the server's message is
// returned. A blank script does nothing.
func (c *Client) LoadScript(ctx context.Context, db config.Postgres, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}

	conn, err := pgx.Connect(ctx, db.URL())
	if err != nil {
		return connectionError("load", db.DBName, err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	slog.Debug("Loading script", "database", db.String(), "bytes", len(script))
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		// the simple protocol accepts several statements per call
		_, err := tx.Conn().PgConn().Exec(ctx, script).ReadAll()
		return err
	})
	if err != nil {
		return statementError("load", db.DBName, err)
	}

	return nil
}

// Exists reports whether db.DBName exists on db's server.
func (c *Client) Exists(ctx context.Context, db config.Postgres) (bool, error) {
	conn, err := c.connectMaintenance(ctx, "exists", db)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	var exists bool
	err = conn.QueryRow(ctx, "select exists (select 1 from pg_database where datname = $1)", db.DBName).Scan(&exists)
	if err != nil {
		return false, statementError("exists", db.DBName, err)
	}

	return exists, nil
}

func (c *Client) admin(ctx context.Context, op string, db config.Postgres, stmt string) error {
	conn, err := c.connectMaintenance(ctx, op, db)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, stmt); err != nil {
		return statementError(op, db.DBName, err)
	}

	return nil
}

func (c *Client) connectMaintenance(ctx context.Context, op string, db config.Postgres) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, db.Maintenance(c.maintenanceDB).URL())
	if err != nil {
		return nil, connectionError(op, db.DBName, err)
	}

	return conn, nil
}
