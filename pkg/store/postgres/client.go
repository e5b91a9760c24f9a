// Package postgres provides a PostgreSQL implementation of the memory
// record store.
//
// The full record lives in a JSONB column; the columns the queries filter
// on (owner, group, category, deletion flag, version) are kept alongside it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/xingxinonline/landoubao-mem0/pkg/memory"
	"github.com/xingxinonline/landoubao-mem0/pkg/store"
)

// Client implements store.Store using PostgreSQL as the backend.
type Client struct {
	db    *sql.DB
	table string
}

// Config contains configuration for the PostgreSQL store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// TableName is the table storing records; defaults to "memories".
	TableName string
}

// NewClient connects to PostgreSQL and prepares the schema.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "memories"
	}
	c := &Client{db: db, table: table}
	if err := c.initTables(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			owner_user TEXT NOT NULL,
			owner_device TEXT,
			group_id TEXT,
			category TEXT NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			version BIGINT NOT NULL,
			record JSONB NOT NULL
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	for _, idx := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(owner_user)", c.table, c.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_group ON %s(group_id)", c.table, c.table),
	} {
		if _, err := c.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// Create persists a new record.
func (c *Client) Create(ctx context.Context, rec *memory.Record) error {
	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_user, owner_device, group_id, category, is_deleted, version, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.table)
	_, err = c.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerUser, rec.OwnerDevice, rec.GroupID, string(rec.Category),
		rec.IsDeleted, rec.Version, string(data))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, rec.ID)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Get returns the record by ID, soft-deleted included.
func (c *Client) Get(ctx context.Context, id string) (*memory.Record, error) {
	query := fmt.Sprintf("SELECT record FROM %s WHERE id = $1", c.table)
	var data string
	if err := c.db.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	var rec memory.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &rec, nil
}

// Update replaces the stored record after a version check.
func (c *Client) Update(ctx context.Context, rec *memory.Record) (*memory.Record, error) {
	next := rec.Clone()
	next.Version = rec.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET owner_user = $1, owner_device = $2, group_id = $3, category = $4,
			is_deleted = $5, version = $6, record = $7
		WHERE id = $8 AND version = $9
	`, c.table)
	res, err := c.db.ExecContext(ctx, query,
		next.OwnerUser, next.OwnerDevice, next.GroupID, string(next.Category),
		next.IsDeleted, next.Version, string(data),
		next.ID, rec.Version)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if affected == 0 {
		if _, getErr := c.Get(ctx, rec.ID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s", store.ErrVersionConflict, rec.ID)
	}
	return next, nil
}

// Delete removes the record permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.table)
	res, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// QueryByUser lists a user's records ordered by ID.
func (c *Client) QueryByUser(ctx context.Context, userID string, opts *store.QueryOptions) ([]*memory.Record, error) {
	where, args := c.buildWhere("owner_user", userID, opts)
	return c.query(ctx, where, args, opts)
}

// QueryByCategory lists a user's records in one category.
func (c *Client) QueryByCategory(ctx context.Context, userID string, cat memory.Category, opts *store.QueryOptions) ([]*memory.Record, error) {
	scoped := store.QueryOptions{Category: cat}
	if opts != nil {
		scoped = *opts
		scoped.Category = cat
	}
	return c.QueryByUser(ctx, userID, &scoped)
}

// QueryByGroup lists records shared into a group.
func (c *Client) QueryByGroup(ctx context.Context, groupID string, opts *store.QueryOptions) ([]*memory.Record, error) {
	where, args := c.buildWhere("group_id", groupID, opts)
	return c.query(ctx, where, args, opts)
}

// Users lists user IDs owning at least one record.
func (c *Client) Users(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT owner_user FROM %s ORDER BY owner_user", c.table)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("Users: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) buildWhere(column, value string, opts *store.QueryOptions) (string, []interface{}) {
	clauses := []string{column + " = $1"}
	args := []interface{}{value}
	if opts == nil || !opts.IncludeDeleted {
		clauses = append(clauses, "is_deleted = FALSE")
	}
	if opts != nil && opts.Category != "" {
		args = append(args, string(opts.Category))
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (c *Client) query(ctx context.Context, where string, args []interface{}, opts *store.QueryOptions) ([]*memory.Record, error) {
	query := fmt.Sprintf("SELECT record FROM %s %s ORDER BY id", c.table, where)
	if opts != nil && opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*memory.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		var rec memory.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
