// Package postgres stores token collections in PostgreSQL, one table per
// collection.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/rs/zerolog/log"
)

// uniqueViolation is the SQLSTATE of a primary key collision.
const uniqueViolation = "23505"

// ErrInvalidTableName is returned for collection names that are not plain
// SQL identifiers.
var ErrInvalidTableName = errors.New("collection name is not a valid table name")

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var tokenColumns = []string{
	"token", "context", "user_id", "roles",
	"created", "updated", "expiration", "final_expiration",
}

// TokenStore is a PostgreSQL backed domain.CollectionProvider. Tables are
// created on first use.
type TokenStore struct {
	db      *sql.DB
	ensured sync.Map
}

// Open connects to dsn with the lib/pq driver and pings the server.
func Open(ctx context.Context, dsn string) (*TokenStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return New(db), nil
}

// New creates a TokenStore over an open database handle.
func New(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Collection implements domain.CollectionProvider.
//
//nolint:ireturn
func (s *TokenStore) Collection(name string) domain.TokenCollection {
	return &Collection{store: s, table: name}
}

// Ping checks the connection.
func (s *TokenStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *TokenStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the table of collection name and its indexes.
func (s *TokenStore) EnsureSchema(ctx context.Context, name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	if _, ok := s.ensured.Load(name); ok {
		return nil
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			token            TEXT PRIMARY KEY,
			context          TEXT NOT NULL DEFAULT '',
			user_id          TEXT NOT NULL,
			roles            TEXT[] NOT NULL DEFAULT '{}',
			created          BIGINT NOT NULL,
			updated          BIGINT NOT NULL,
			expiration       BIGINT NOT NULL,
			final_expiration BIGINT NOT NULL
		)`, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_expiration_idx ON %s (expiration)`, name, name),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_user_idx ON %s (user_id)`, name, name),
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating token table %s: %w", name, err)
		}
	}

	s.ensured.Store(name, struct{}{})
	log.Info().Str("collection", name).Msg("Token table ensured.")
	return nil
}

// Collection is one token table.
type Collection struct {
	store *TokenStore
	table string
}

// InsertOne implements domain.TokenCollection.
func (c *Collection) InsertOne(ctx context.Context, token *domain.Token) error {
	if err := c.store.EnsureSchema(ctx, c.table); err != nil {
		return err
	}

	query, args, err := psq.Insert(c.table).Columns(tokenColumns...).Values(
		token.Token, token.Context, token.User, pq.Array(token.Roles),
		token.Created, token.Updated, token.Expiration, token.FinalExpiration,
	).ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := c.store.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateToken
		}
		log.Error().Err(err).Str("collection", c.table).Msg("Error storing token in PostgreSQL")
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

// UpdateOne implements domain.TokenCollection.
func (c *Collection) UpdateOne(ctx context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	if err := c.store.EnsureSchema(ctx, c.table); err != nil {
		return domain.UpdateResult{}, err
	}

	qb := psq.Update(c.table).Set("updated", update.Updated)
	switch {
	case update.FinalExpiration != nil:
		expiration := update.Expiration
		if update.CapExpirationAtFinal && expiration > *update.FinalExpiration {
			expiration = *update.FinalExpiration
		}
		qb = qb.Set("expiration", expiration).Set("final_expiration", *update.FinalExpiration)
	case update.CapExpirationAtFinal:
		qb = qb.Set("expiration", sq.Expr("LEAST(?::BIGINT, final_expiration)", update.Expiration))
	default:
		qb = qb.Set("expiration", update.Expiration)
	}

	query, args, err := qb.Where(c.firstMatch(filter)).ToSql()
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("building update: %w", err)
	}

	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("updating token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("reading updated rows: %w", err)
	}
	return domain.UpdateResult{MatchedCount: n, ModifiedCount: n}, nil
}

// FindOne implements domain.TokenCollection.
func (c *Collection) FindOne(ctx context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	if err := c.store.EnsureSchema(ctx, c.table); err != nil {
		return nil, err
	}

	query, args, err := psq.Select(tokenColumns...).From(c.table).Where(where(filter)).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var (
		tok   domain.Token
		roles []string
	)
	err = c.store.db.QueryRowContext(ctx, query, args...).Scan(
		&tok.Token, &tok.Context, &tok.User, pq.Array(&roles),
		&tok.Created, &tok.Updated, &tok.Expiration, &tok.FinalExpiration,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding token: %w", err)
	}
	tok.Roles = domain.NormalizeRoles(roles)
	return &tok, nil
}

// DeleteOne implements domain.TokenCollection.
func (c *Collection) DeleteOne(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	return c.delete(ctx, c.firstMatch(filter))
}

// DeleteMany implements domain.TokenCollection.
func (c *Collection) DeleteMany(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	return c.delete(ctx, where(filter))
}

func (c *Collection) delete(ctx context.Context, pred sq.Sqlizer) (int64, error) {
	if err := c.store.EnsureSchema(ctx, c.table); err != nil {
		return 0, err
	}

	query, args, err := psq.Delete(c.table).Where(pred).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building delete: %w", err)
	}
	res, err := c.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting tokens: %w", err)
	}
	return res.RowsAffected()
}

// firstMatch restricts a statement to the first row matching filter.
// UPDATE and DELETE have no LIMIT in PostgreSQL.
func (c *Collection) firstMatch(filter domain.TokenFilter) sq.Sqlizer {
	if filter.Token != "" {
		// token is the primary key, at most one row can match.
		return where(filter)
	}
	sub := sq.Select("token").From(c.table).Where(where(filter)).Limit(1)
	return sq.Expr("token = (?)", sub)
}

// where translates filter into a WHERE predicate. Zero fields add nothing.
func where(f domain.TokenFilter) sq.And {
	pred := sq.And{}
	if f.Token != "" {
		pred = append(pred, sq.Eq{"token": f.Token})
	}
	if f.User != "" {
		pred = append(pred, sq.Eq{"user_id": f.User})
	}
	if f.Role != "" {
		pred = append(pred, sq.Expr("? = ANY(roles)", f.Role))
	}
	if f.ExpirationAfter != 0 {
		pred = append(pred, sq.Gt{"expiration": f.ExpirationAfter})
	}
	if f.FinalExpirationAfter != 0 {
		pred = append(pred, sq.Gt{"final_expiration": f.FinalExpirationAfter})
	}
	if f.ExpirationBefore != 0 {
		pred = append(pred, sq.Lt{"expiration": f.ExpirationBefore})
	}
	return pred
}

var (
	_ domain.CollectionProvider = (*TokenStore)(nil)
	_ domain.TokenCollection    = (*Collection)(nil)
)
