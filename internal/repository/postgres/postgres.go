package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProductRepository   = (*Repository)(nil)
	_ repository.EndpointRepository  = (*Repository)(nil)
	_ repository.TelemetryRepository = (*Repository)(nil)
)

// CreateProduct inserts a product.
func (r *Repository) CreateProduct(ctx context.Context, product *domain.Product) error {
	const query = `INSERT INTO products (id, name, description, total_endpoints, active_endpoints, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, product.ID, product.Name, nilIfEmpty(product.Description), product.TotalEndpoints, product.ActiveEndpoints, product.CreatedAt)
	return mapPgError(err)
}

// GetProductByID fetches a product by identifier.
func (r *Repository) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	const query = `SELECT id, name, COALESCE(description, ''), total_endpoints, active_endpoints, created_at
		FROM products WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TotalEndpoints, &p.ActiveEndpoints, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts returns all products, newest first.
func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const query = `SELECT id, name, COALESCE(description, ''), total_endpoints, active_endpoints, created_at
		FROM products ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.TotalEndpoints, &p.ActiveEndpoints, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateEndpoint inserts an endpoint and bumps the product's counters in one
// transaction.
func (r *Repository) CreateEndpoint(ctx context.Context, endpoint *domain.Endpoint) error {
	if endpoint == nil {
		return fmt.Errorf("endpoint required")
	}
	headers, err := marshalStringMap(endpoint.Headers)
	if err != nil {
		return fmt.Errorf("encode endpoint headers: %w", err)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO endpoints (
		id, product_id, name, method, base_url, path, full_url, headers, status,
		total_requests, successful_requests, failed_requests, total_duration_ms,
		average_response_time, last_request_time, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,0,0,0,0,NULL,$10)`
	if _, err := tx.Exec(ctx, insert,
		endpoint.ID,
		endpoint.ProductID,
		endpoint.Name,
		endpoint.Method,
		endpoint.BaseURL,
		endpoint.Path,
		endpoint.FullURL,
		headers,
		endpoint.Status,
		endpoint.CreatedAt,
	); err != nil {
		return mapPgError(err)
	}

	const bump = `UPDATE products SET
		total_endpoints = total_endpoints + 1,
		active_endpoints = active_endpoints + CASE WHEN $2 = 'active' THEN 1 ELSE 0 END
	WHERE id = $1`
	tag, err := tx.Exec(ctx, bump, endpoint.ProductID, endpoint.Status)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// GetEndpointByID retrieves an endpoint with its metrics aggregate.
func (r *Repository) GetEndpointByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	const query = `SELECT id, product_id, name, method, base_url, path, full_url, headers, status,
		total_requests, successful_requests, failed_requests, total_duration_ms,
		average_response_time, last_request_time, created_at
	FROM endpoints WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	endpoint, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return endpoint, nil
}

// ListEndpointsByProduct returns a product's endpoints, newest first.
func (r *Repository) ListEndpointsByProduct(ctx context.Context, productID string) ([]domain.Endpoint, error) {
	const query = `SELECT id, product_id, name, method, base_url, path, full_url, headers, status,
		total_requests, successful_requests, failed_requests, total_duration_ms,
		average_response_time, last_request_time, created_at
	FROM endpoints WHERE product_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := make([]domain.Endpoint, 0)
	for rows.Next() {
		endpoint, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *endpoint)
	}
	return endpoints, rows.Err()
}

// UpdateEndpointStatus changes an endpoint's status and keeps the product's
// active counter in step.
func (r *Repository) UpdateEndpointStatus(ctx context.Context, id, status string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const current = `SELECT product_id, status FROM endpoints WHERE id = $1 FOR UPDATE`
	var (
		productID string
		oldStatus string
	)
	if err := tx.QueryRow(ctx, current, id).Scan(&productID, &oldStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapPgError(err)
	}
	const update = `UPDATE endpoints SET status = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, update, id, status); err != nil {
		return mapPgError(err)
	}

	delta := 0
	if oldStatus != domain.EndpointStatusActive && status == domain.EndpointStatusActive {
		delta = 1
	} else if oldStatus == domain.EndpointStatusActive && status != domain.EndpointStatusActive {
		delta = -1
	}
	if delta != 0 {
		const bump = `UPDATE products SET active_endpoints = active_endpoints + $2 WHERE id = $1`
		if _, err := tx.Exec(ctx, bump, productID, delta); err != nil {
			return mapPgError(err)
		}
	}
	return tx.Commit(ctx)
}

// InsertRecord stores a telemetry record and the updated endpoint metrics in
// a single transaction so the record count and total_requests cannot diverge.
func (r *Repository) InsertRecord(ctx context.Context, record *domain.TelemetryRecord, metrics domain.EndpointMetrics) error {
	if record == nil {
		return fmt.Errorf("telemetry record required")
	}
	reqHeaders, err := marshalStringMap(record.Request.Headers)
	if err != nil {
		return fmt.Errorf("encode request headers: %w", err)
	}
	queryParams, err := marshalStringMap(record.Request.QueryParams)
	if err != nil {
		return fmt.Errorf("encode query params: %w", err)
	}
	respHeaders, err := marshalStringMap(record.Response.Headers)
	if err != nil {
		return fmt.Errorf("encode response headers: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO telemetry_records (
		id, endpoint_id, product_id,
		method, url, request_headers, query_params, request_body,
		status_code, status_text, response_headers, response_body, response_size_bytes,
		started_at, ended_at, duration_ms,
		environment, source, user_id, created_at
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,COALESCE($20, NOW())
	) RETURNING created_at`
	err = tx.QueryRow(ctx, insert,
		record.ID,
		record.EndpointID,
		record.ProductID,
		record.Request.Method,
		record.Request.URL,
		reqHeaders,
		queryParams,
		nilIfEmpty(record.Request.Body),
		record.Response.StatusCode,
		record.Response.StatusText,
		respHeaders,
		nilIfEmpty(record.Response.Body),
		record.Response.SizeBytes,
		record.Timing.StartTime,
		record.Timing.EndTime,
		record.Timing.DurationMS,
		record.Environment,
		record.Source,
		nilIfEmpty(record.UserID),
		nilTime(record.CreatedAt),
	).Scan(&record.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}

	const update = `UPDATE endpoints SET
		total_requests = $2,
		successful_requests = $3,
		failed_requests = $4,
		total_duration_ms = $5,
		average_response_time = $6,
		last_request_time = $7
	WHERE id = $1`
	tag, err := tx.Exec(ctx, update,
		record.EndpointID,
		metrics.TotalRequests,
		metrics.SuccessfulRequests,
		metrics.FailedRequests,
		metrics.TotalDurationMS,
		metrics.AverageResponseTime,
		nilTime(metrics.LastRequestTime),
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return tx.Commit(ctx)
}

// GetEndpointMetrics reads the running counters for one endpoint.
func (r *Repository) GetEndpointMetrics(ctx context.Context, endpointID string) (domain.EndpointMetrics, error) {
	const query = `SELECT total_requests, successful_requests, failed_requests, total_duration_ms,
		average_response_time, last_request_time
	FROM endpoints WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, endpointID)
	var (
		m    domain.EndpointMetrics
		last *time.Time
	)
	if err := row.Scan(&m.TotalRequests, &m.SuccessfulRequests, &m.FailedRequests, &m.TotalDurationMS, &m.AverageResponseTime, &last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EndpointMetrics{}, repository.ErrNotFound
		}
		return domain.EndpointMetrics{}, err
	}
	if last != nil {
		m.LastRequestTime = *last
	}
	return m, nil
}

// StreamRecords walks matching records in ascending start order, invoking fn
// once per row. Filters are conjunctive; empty dimensions match all.
func (r *Repository) StreamRecords(ctx context.Context, filter repository.RecordFilter, fn func(domain.TelemetryRecord) error) error {
	const query = `SELECT
		id, endpoint_id, product_id,
		method, url, request_headers, query_params, COALESCE(request_body, ''),
		status_code, status_text, response_headers, COALESCE(response_body, ''), response_size_bytes,
		started_at, ended_at, duration_ms,
		environment, source, COALESCE(user_id, ''), created_at
	FROM telemetry_records
	WHERE started_at >= $1 AND started_at <= $2
		AND ($3 = '' OR product_id = $3)
		AND ($4 = '' OR endpoint_id = $4)
		AND ($5 = '' OR environment = $5)
	ORDER BY started_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query,
		filter.Start,
		filter.End,
		strings.TrimSpace(filter.ProductID),
		strings.TrimSpace(filter.EndpointID),
		strings.TrimSpace(filter.Environment),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec         domain.TelemetryRecord
			reqHeaders  []byte
			queryParams []byte
			respHeaders []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EndpointID,
			&rec.ProductID,
			&rec.Request.Method,
			&rec.Request.URL,
			&reqHeaders,
			&queryParams,
			&rec.Request.Body,
			&rec.Response.StatusCode,
			&rec.Response.StatusText,
			&respHeaders,
			&rec.Response.Body,
			&rec.Response.SizeBytes,
			&rec.Timing.StartTime,
			&rec.Timing.EndTime,
			&rec.Timing.DurationMS,
			&rec.Environment,
			&rec.Source,
			&rec.UserID,
			&rec.CreatedAt,
		); err != nil {
			return err
		}
		if rec.Request.Headers, err = unmarshalStringMap(reqHeaders); err != nil {
			return err
		}
		if rec.Request.QueryParams, err = unmarshalStringMap(queryParams); err != nil {
			return err
		}
		if rec.Response.Headers, err = unmarshalStringMap(respHeaders); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteRecordsBefore hard-deletes records whose probe started before cutoff.
func (r *Repository) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM telemetry_records WHERE started_at < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var (
		e       domain.Endpoint
		headers []byte
		last    *time.Time
	)
	if err := row.Scan(
		&e.ID,
		&e.ProductID,
		&e.Name,
		&e.Method,
		&e.BaseURL,
		&e.Path,
		&e.FullURL,
		&headers,
		&e.Status,
		&e.Metrics.TotalRequests,
		&e.Metrics.SuccessfulRequests,
		&e.Metrics.FailedRequests,
		&e.Metrics.TotalDurationMS,
		&e.Metrics.AverageResponseTime,
		&last,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if last != nil {
		e.Metrics.LastRequestTime = *last
	}
	parsed, err := unmarshalStringMap(headers)
	if err != nil {
		return nil, err
	}
	e.Headers = parsed
	return &e, nil
}

func marshalStringMap(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalStringMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode jsonb map: %w", err)
	}
	return m, nil
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nilTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return repository.ErrNotFound
		case "23505", "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}
