// Package storage persists sources, articles, and their indicators in
// Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"threatfeed/internal/model"
)

// ErrDuplicate reports that an article with the same fingerprint is already
// stored. Callers treat it as a silent skip, not a failure.
var ErrDuplicate = errors.New("article with this fingerprint already exists")

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sources (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		url TEXT NOT NULL,
		type VARCHAR(50) NOT NULL DEFAULT 'threat_intel',
		region VARCHAR(100),
		country VARCHAR(100),
		language VARCHAR(10) NOT NULL DEFAULT 'en',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		fetch_interval_minutes INTEGER NOT NULL DEFAULT 30 CHECK (fetch_interval_minutes >= 1),
		last_fetched_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS articles (
		id UUID PRIMARY KEY,
		source_id UUID REFERENCES sources(id),
		title_raw TEXT NOT NULL,
		body_raw TEXT NOT NULL,
		summary_raw TEXT,
		source_url TEXT NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		language_detected VARCHAR(10) NOT NULL,
		title_es TEXT,
		body_es TEXT,
		summary_es TEXT,
		translated BOOLEAN NOT NULL DEFAULT FALSE,
		confidence_translation DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		fingerprint VARCHAR(64) NOT NULL UNIQUE,
		truncated BOOLEAN NOT NULL DEFAULT FALSE,
		tags TEXT[] NOT NULL DEFAULT '{}',
		has_iocs BOOLEAN NOT NULL DEFAULT FALSE,
		ioc_count INTEGER NOT NULL DEFAULT 0,
		indexed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS iocs (
		id UUID PRIMARY KEY,
		article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		type VARCHAR(20) NOT NULL,
		value TEXT NOT NULL,
		normalized_value TEXT NOT NULL,
		context TEXT,
		confidence DOUBLE PRECISION NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC);
	CREATE INDEX IF NOT EXISTS idx_iocs_article_id ON iocs(article_id);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// CreateSource inserts a new source, generating an ID when absent.
func (s *Store) CreateSource(ctx context.Context, src *model.Source) error {
	if src.FetchIntervalMinutes < 1 {
		return fmt.Errorf("source %s: fetch interval must be at least 1 minute", src.Name)
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (id, name, url, type, region, country, language, enabled, fetch_interval_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		src.ID, src.Name, src.URL, src.Type, src.Region, src.Country, src.Language, src.Enabled, src.FetchIntervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("create source %s: %w", src.Name, err)
	}
	return nil
}

// GetSource looks up one source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, url, type, region, country, language, enabled, fetch_interval_minutes, last_fetched_at
		FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

// ListSources returns every configured source ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `
		SELECT id, name, url, type, region, country, language, enabled, fetch_interval_minutes, last_fetched_at
		FROM sources ORDER BY name ASC`)
}

// ListEnabledSources returns the sources the scheduler evaluates.
func (s *Store) ListEnabledSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `
		SELECT id, name, url, type, region, country, language, enabled, fetch_interval_minutes, last_fetched_at
		FROM sources WHERE enabled = TRUE ORDER BY name ASC`)
}

func (s *Store) querySources(ctx context.Context, query string) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func scanSource(row pgx.Row) (*model.Source, error) {
	var src model.Source
	err := row.Scan(
		&src.ID, &src.Name, &src.URL, &src.Type, &src.Region, &src.Country,
		&src.Language, &src.Enabled, &src.FetchIntervalMinutes, &src.LastFetchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// UpdateLastFetched records a completed fetch cycle for a source.
func (s *Store) UpdateLastFetched(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE sources SET last_fetched_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last fetched for %s: %w", id, err)
	}
	return nil
}

// FingerprintExists reports whether an article with the fingerprint is
// already stored.
func (s *Store) FingerprintExists(ctx context.Context, fp string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE fingerprint = $1)`, fp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return exists, nil
}

// CreateArticle persists an article and its indicators as one unit. A
// fingerprint collision (a concurrent write landed first) returns
// ErrDuplicate.
func (s *Store) CreateArticle(ctx context.Context, article *model.Article, indicators []model.Indicator) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO articles (
			id, source_id, title_raw, body_raw, summary_raw, source_url, published_at,
			language_detected, title_es, body_es, summary_es, translated,
			confidence_translation, fingerprint, truncated, tags, has_iocs, ioc_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		article.ID, article.SourceID, article.TitleRaw, article.BodyRaw, article.SummaryRaw,
		article.SourceURL, article.PublishedAt, article.LanguageDetected,
		article.TitleES, article.BodyES, article.SummaryES, article.Translated,
		article.ConfidenceTranslation, article.Fingerprint, article.Truncated,
		article.Tags, article.HasIOCs, article.IOCCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert article: %w", err)
	}

	for i := range indicators {
		ind := &indicators[i]
		if ind.ID == "" {
			ind.ID = uuid.NewString()
		}
		ind.ArticleID = article.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO iocs (id, article_id, type, value, normalized_value, context, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ind.ID, ind.ArticleID, ind.Type, ind.Value, ind.NormalizedValue, ind.Context, ind.Confidence,
		)
		if err != nil {
			return fmt.Errorf("insert indicator %s: %w", ind.NormalizedValue, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit article: %w", err)
	}
	return nil
}

// MarkIndexed sets the one mutable article field, after search indexing
// succeeds.
func (s *Store) MarkIndexed(ctx context.Context, articleID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE articles SET indexed_at = $2 WHERE id = $1`, articleID, at)
	if err != nil {
		return fmt.Errorf("mark indexed %s: %w", articleID, err)
	}
	return nil
}

// GetArticle loads one article with its indicators.
func (s *Store) GetArticle(ctx context.Context, id string) (*model.Article, []model.Indicator, error) {
	var a model.Article
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_id, title_raw, body_raw, summary_raw, source_url, published_at,
		       language_detected, title_es, body_es, summary_es, translated,
		       confidence_translation, fingerprint, truncated, tags, has_iocs, ioc_count,
		       indexed_at, created_at
		FROM articles WHERE id = $1`, id).Scan(
		&a.ID, &a.SourceID, &a.TitleRaw, &a.BodyRaw, &a.SummaryRaw, &a.SourceURL, &a.PublishedAt,
		&a.LanguageDetected, &a.TitleES, &a.BodyES, &a.SummaryES, &a.Translated,
		&a.ConfidenceTranslation, &a.Fingerprint, &a.Truncated, &a.Tags, &a.HasIOCs, &a.IOCCount,
		&a.IndexedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("article %s not found", id)
		}
		return nil, nil, fmt.Errorf("get article %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, article_id, type, value, normalized_value, context, confidence
		FROM iocs WHERE article_id = $1`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("query indicators for %s: %w", id, err)
	}
	defer rows.Close()

	var indicators []model.Indicator
	for rows.Next() {
		var ind model.Indicator
		if err := rows.Scan(&ind.ID, &ind.ArticleID, &ind.Type, &ind.Value,
			&ind.NormalizedValue, &ind.Context, &ind.Confidence); err != nil {
			return nil, nil, fmt.Errorf("scan indicator: %w", err)
		}
		indicators = append(indicators, ind)
	}
	return &a, indicators, rows.Err()
}

// RecentArticles returns the newest stored articles, most recent first.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]model.Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, title_raw, source_url, published_at, language_detected,
		       title_es, translated, confidence_translation, fingerprint, truncated,
		       tags, has_iocs, ioc_count, indexed_at, created_at
		FROM articles ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		err := rows.Scan(
			&a.ID, &a.SourceID, &a.TitleRaw, &a.SourceURL, &a.PublishedAt, &a.LanguageDetected,
			&a.TitleES, &a.Translated, &a.ConfidenceTranslation, &a.Fingerprint, &a.Truncated,
			&a.Tags, &a.HasIOCs, &a.IOCCount, &a.IndexedAt, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
