package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// tsLayout is RFC3339 with fixed nanosecond width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Repository stores opportunities and their ledgers in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Each pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			sales_manager_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			annual_recurring_revenue REAL NOT NULL DEFAULT 0,
			region_id TEXT NOT NULL DEFAULT '',
			geo_json TEXT NOT NULL DEFAULT '{}',
			problem_statement_json TEXT,
			skills_json TEXT NOT NULL DEFAULT '[]',
			timeline_json TEXT,
			selected_architect_id TEXT NOT NULL DEFAULT '',
			previous_status TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			submitted_at TEXT,
			completed_at TEXT,
			cancelled_at TEXT,
			reactivation_deadline TEXT,
			version INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS status_records (
			opportunity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			at TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(opportunity_id, seq),
			FOREIGN KEY(opportunity_id) REFERENCES opportunities(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_records (
			opportunity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(opportunity_id, seq),
			FOREIGN KEY(opportunity_id) REFERENCES opportunities(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_sales_manager ON opportunities(sales_manager_id, updated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_status ON opportunities(status);`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_customer ON opportunities(customer_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// opportunityColumns lists opportunities columns in scan order.
const opportunityColumns = `id, title, customer_id, customer_name, sales_manager_id, description, priority, status,
	annual_recurring_revenue, geo_json, problem_statement_json, skills_json, timeline_json, selected_architect_id,
	previous_status, cancellation_reason, created_at, updated_at, submitted_at, completed_at, cancelled_at,
	reactivation_deadline, version`

// CreateOpportunity inserts a new opportunity with its ledgers.
func (r *Repository) CreateOpportunity(ctx context.Context, o domain.Opportunity) (err error) {
	row, err := encodeOpportunity(o)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM opportunities WHERE id = ?`, o.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		err = fmt.Errorf("opportunity %q: %w", o.ID, app.ErrAlreadyExists)
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO opportunities(
			id, title, customer_id, customer_name, sales_manager_id, description, priority, status,
			annual_recurring_revenue, region_id, geo_json, problem_statement_json, skills_json, timeline_json,
			selected_architect_id, previous_status, cancellation_reason, created_at, updated_at, submitted_at,
			completed_at, cancelled_at, reactivation_deadline, version
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID,
		o.Title,
		o.Customer.ID,
		o.Customer.Name,
		o.SalesManagerID,
		o.Description,
		string(o.Priority),
		string(o.Status),
		o.AnnualRecurringRevenue,
		o.Geo.RegionID,
		row.geo,
		row.problemStatement,
		row.skills,
		row.timeline,
		o.SelectedArchitectID,
		string(o.PreviousStatus),
		o.CancellationReason,
		ts(o.CreatedAt),
		ts(o.UpdatedAt),
		nullableTS(o.SubmittedAt),
		nullableTS(o.CompletedAt),
		nullableTS(o.CancelledAt),
		nullableTS(o.ReactivationDeadline),
		o.Version,
	)
	if err != nil {
		return err
	}
	if err = appendLedgers(ctx, tx, o); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// SaveOpportunity replaces the stored row when its version equals expectedVersion and
// appends ledger records not yet stored.
func (r *Repository) SaveOpportunity(ctx context.Context, o domain.Opportunity, expectedVersion int64) (err error) {
	row, err := encodeOpportunity(o)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE opportunities
		SET title = ?, customer_id = ?, customer_name = ?, sales_manager_id = ?, description = ?, priority = ?, status = ?,
			annual_recurring_revenue = ?, region_id = ?, geo_json = ?, problem_statement_json = ?, skills_json = ?,
			timeline_json = ?, selected_architect_id = ?, previous_status = ?, cancellation_reason = ?, updated_at = ?,
			submitted_at = ?, completed_at = ?, cancelled_at = ?, reactivation_deadline = ?, version = ?
		WHERE id = ? AND version = ?
	`,
		o.Title,
		o.Customer.ID,
		o.Customer.Name,
		o.SalesManagerID,
		o.Description,
		string(o.Priority),
		string(o.Status),
		o.AnnualRecurringRevenue,
		o.Geo.RegionID,
		row.geo,
		row.problemStatement,
		row.skills,
		row.timeline,
		o.SelectedArchitectID,
		string(o.PreviousStatus),
		o.CancellationReason,
		ts(o.UpdatedAt),
		nullableTS(o.SubmittedAt),
		nullableTS(o.CompletedAt),
		nullableTS(o.CancelledAt),
		nullableTS(o.ReactivationDeadline),
		o.Version,
		o.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		var exists int
		if qerr := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM opportunities WHERE id = ?`, o.ID).Scan(&exists); qerr != nil {
			err = qerr
			return err
		}
		if exists > 0 {
			err = fmt.Errorf("opportunity %q at version %d: %w", o.ID, expectedVersion, app.ErrConflict)
		}
		return err
	}
	if err = appendLedgers(ctx, tx, o); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// GetOpportunity loads one opportunity with both ledgers.
func (r *Repository) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := r.loadLedgers(ctx, &o); err != nil {
		return domain.Opportunity{}, err
	}
	return o, nil
}

// SearchOpportunities lists opportunities matching filter, most recently updated first.
func (r *Repository) SearchOpportunities(ctx context.Context, filter app.SearchFilter) ([]domain.Opportunity, error) {
	var (
		where  []string
		params []any
	)
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(customer_name) LIKE ? ESCAPE '\')`)
		params = append(params, like, like, like)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			params = append(params, string(s))
		}
	}
	if len(filter.Priorities) > 0 {
		where = append(where, "priority IN ("+placeholders(len(filter.Priorities))+")")
		for _, p := range filter.Priorities {
			params = append(params, string(p))
		}
	}
	if filter.SalesManagerID != "" {
		where = append(where, "sales_manager_id = ?")
		params = append(params, filter.SalesManagerID)
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		params = append(params, filter.CustomerID)
	}
	cond, err := parseFilter(filter.Filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if cond.Clause != "" {
		where = append(where, cond.Clause)
		params = append(params, cond.Params...)
	}

	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Opportunity, 0)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadLedgers(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteOpportunity removes one opportunity and its ledgers.
func (r *Repository) DeleteOpportunity(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM status_records WHERE opportunity_id = ?`,
		`DELETE FROM change_records WHERE opportunity_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// loadLedgers reads both ledgers of o ordered by sequence.
func (r *Repository) loadLedgers(ctx context.Context, o *domain.Opportunity) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, status, at, actor_id, reason
		FROM status_records
		WHERE opportunity_id = ?
		ORDER BY seq ASC
	`, o.ID)
	if err != nil {
		return err
	}
	o.StatusHistory = o.StatusHistory[:0]
	for rows.Next() {
		var (
			rec    domain.StatusRecord
			status string
			atRaw  string
		)
		if err := rows.Scan(&rec.Seq, &status, &atRaw, &rec.ActorID, &rec.Reason); err != nil {
			_ = rows.Close()
			return err
		}
		rec.Status = domain.Status(status)
		rec.At = parseTS(atRaw)
		o.StatusHistory = append(o.StatusHistory, rec)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, `
		SELECT seq, field, old_value, new_value, at, actor_id, reason
		FROM change_records
		WHERE opportunity_id = ?
		ORDER BY seq ASC
	`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Changes = nil
	for rows.Next() {
		var (
			rec   domain.ChangeRecord
			atRaw string
		)
		if err := rows.Scan(&rec.Seq, &rec.Field, &rec.OldValue, &rec.NewValue, &atRaw, &rec.ActorID, &rec.Reason); err != nil {
			return err
		}
		rec.At = parseTS(atRaw)
		o.Changes = append(o.Changes, rec)
	}
	return rows.Err()
}

// execerContext represents the exec subset shared by *sql.DB and *sql.Tx.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// appendLedgers inserts ledger records of o. Stored records are never rewritten.
func appendLedgers(ctx context.Context, execer execerContext, o domain.Opportunity) error {
	for _, rec := range o.StatusHistory {
		if _, err := execer.ExecContext(ctx, `
			INSERT OR IGNORE INTO status_records(opportunity_id, seq, status, at, actor_id, reason)
			VALUES (?, ?, ?, ?, ?, ?)
		`, o.ID, rec.Seq, string(rec.Status), ts(rec.At), rec.ActorID, rec.Reason); err != nil {
			return fmt.Errorf("insert status record %d: %w", rec.Seq, err)
		}
	}
	for _, rec := range o.Changes {
		if _, err := execer.ExecContext(ctx, `
			INSERT OR IGNORE INTO change_records(opportunity_id, seq, field, old_value, new_value, at, actor_id, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, o.ID, rec.Seq, rec.Field, rec.OldValue, rec.NewValue, ts(rec.At), rec.ActorID, rec.Reason); err != nil {
			return fmt.Errorf("insert change record %d: %w", rec.Seq, err)
		}
	}
	return nil
}

// encodedOpportunity holds the JSON-encoded sub-entities of one row.
type encodedOpportunity struct {
	geo              string
	problemStatement any
	skills           string
	timeline         any
}

func encodeOpportunity(o domain.Opportunity) (encodedOpportunity, error) {
	var out encodedOpportunity
	geo, err := json.Marshal(o.Geo)
	if err != nil {
		return out, fmt.Errorf("encode geo_json: %w", err)
	}
	out.geo = string(geo)

	skills := o.Skills
	if skills == nil {
		skills = []domain.SkillRequirement{}
	}
	raw, err := json.Marshal(skills)
	if err != nil {
		return out, fmt.Errorf("encode skills_json: %w", err)
	}
	out.skills = string(raw)

	if o.ProblemStatement != nil {
		raw, err := json.Marshal(o.ProblemStatement)
		if err != nil {
			return out, fmt.Errorf("encode problem_statement_json: %w", err)
		}
		out.problemStatement = string(raw)
	}
	if o.Timeline != nil {
		raw, err := json.Marshal(o.Timeline)
		if err != nil {
			return out, fmt.Errorf("encode timeline_json: %w", err)
		}
		out.timeline = string(raw)
	}
	return out, nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanOpportunity decodes one opportunities row without ledgers.
func scanOpportunity(s scanner) (domain.Opportunity, error) {
	var (
		o                  domain.Opportunity
		priority           string
		status             string
		previousStatus     string
		geoRaw             string
		problemRaw         sql.NullString
		skillsRaw          string
		timelineRaw        sql.NullString
		createdRaw         string
		updatedRaw         string
		submittedRaw       sql.NullString
		completedRaw       sql.NullString
		cancelledRaw       sql.NullString
		reactivationDueRaw sql.NullString
	)
	if err := s.Scan(
		&o.ID,
		&o.Title,
		&o.Customer.ID,
		&o.Customer.Name,
		&o.SalesManagerID,
		&o.Description,
		&priority,
		&status,
		&o.AnnualRecurringRevenue,
		&geoRaw,
		&problemRaw,
		&skillsRaw,
		&timelineRaw,
		&o.SelectedArchitectID,
		&previousStatus,
		&o.CancellationReason,
		&createdRaw,
		&updatedRaw,
		&submittedRaw,
		&completedRaw,
		&cancelledRaw,
		&reactivationDueRaw,
		&o.Version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Opportunity{}, app.ErrNotFound
		}
		return domain.Opportunity{}, err
	}
	o.Priority = domain.Priority(priority)
	o.Status = domain.Status(status)
	o.PreviousStatus = domain.Status(previousStatus)
	if err := json.Unmarshal([]byte(geoRaw), &o.Geo); err != nil {
		return domain.Opportunity{}, fmt.Errorf("decode geo_json: %w", err)
	}
	if err := json.Unmarshal([]byte(skillsRaw), &o.Skills); err != nil {
		return domain.Opportunity{}, fmt.Errorf("decode skills_json: %w", err)
	}
	if len(o.Skills) == 0 {
		o.Skills = nil
	}
	if problemRaw.Valid && strings.TrimSpace(problemRaw.String) != "" {
		var ps domain.ProblemStatement
		if err := json.Unmarshal([]byte(problemRaw.String), &ps); err != nil {
			return domain.Opportunity{}, fmt.Errorf("decode problem_statement_json: %w", err)
		}
		o.ProblemStatement = &ps
	}
	if timelineRaw.Valid && strings.TrimSpace(timelineRaw.String) != "" {
		var tl domain.TimelineRequirement
		if err := json.Unmarshal([]byte(timelineRaw.String), &tl); err != nil {
			return domain.Opportunity{}, fmt.Errorf("decode timeline_json: %w", err)
		}
		o.Timeline = &tl
	}
	o.CreatedAt = parseTS(createdRaw)
	o.UpdatedAt = parseTS(updatedRaw)
	o.SubmittedAt = parseNullTS(submittedRaw)
	o.CompletedAt = parseNullTS(completedRaw)
	o.CancelledAt = parseNullTS(cancelledRaw)
	o.ReactivationDeadline = parseNullTS(reactivationDueRaw)
	return o, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
