// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a claim with tenant isolation.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO claims (
			id, tenant_id, hospital_code, doctor_id, icd10_code,
			patient_age, patient_gender, care_class, los_days, num_procedures,
			procedures, tarif_inacbg, tarif_rs,
			provider_claims_count, provider_high_cost_rate,
			submitted_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID, claim.HospitalCode, claim.DoctorID, claim.ICD10Code,
		nullInt(claim.PatientAge), claim.PatientGender, claim.CareClass,
		claim.LOSDays, claim.NumProcedures,
		claim.Procedures, claim.TarifINACBG, claim.TarifRS,
		nullInt(claim.ProviderClaimsCount), nullFloat(claim.ProviderHighCostRate),
		claim.SubmittedAt, claim.CreatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := claimSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID)
	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return claim, err
}

// GetClaimsByProvider retrieves claims submitted by a doctor since a cutoff,
// newest first, with tenant isolation.
func (r *SQLRepository) GetClaimsByProvider(ctx context.Context, tenantID string, doctorID string, since time.Time) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := claimSelect + `
		WHERE tenant_id = ? AND doctor_id = ? AND submitted_at >= ?
		ORDER BY submitted_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, doctorID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}

const claimSelect = `
	SELECT id, tenant_id, hospital_code, doctor_id, icd10_code,
		   patient_age, patient_gender, care_class, los_days, num_procedures,
		   procedures, tarif_inacbg, tarif_rs,
		   provider_claims_count, provider_high_cost_rate,
		   submitted_at, created_at
	FROM claims
`

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var claim domain.Claim
	var patientAge, providerClaims sql.NullInt64
	var highCostRate sql.NullFloat64

	err := row.Scan(
		&claim.ID, &claim.TenantID, &claim.HospitalCode, &claim.DoctorID, &claim.ICD10Code,
		&patientAge, &claim.PatientGender, &claim.CareClass,
		&claim.LOSDays, &claim.NumProcedures,
		&claim.Procedures, &claim.TarifINACBG, &claim.TarifRS,
		&providerClaims, &highCostRate,
		&claim.SubmittedAt, &claim.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if patientAge.Valid {
		age := int(patientAge.Int64)
		claim.PatientAge = &age
	}
	if providerClaims.Valid {
		count := int(providerClaims.Int64)
		claim.ProviderClaimsCount = &count
	}
	if highCostRate.Valid {
		rate := highCostRate.Float64
		claim.ProviderHighCostRate = &rate
	}

	return &claim, nil
}

// SaveAssessment stores a risk assessment with tenant isolation.
// Nested structures are stored as JSON columns.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, assessment *domain.RiskAssessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(assessment.TopRiskFactors)
	recommendation, _ := json.Marshal(assessment.Recommendation)
	flags, _ := json.Marshal(assessment.ScreenFlags)
	metadata, _ := json.Marshal(assessment.Metadata)

	isFraud := 0
	if assessment.IsFraud {
		isFraud = 1
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, claim_id, is_fraud, fraud_probability,
			risk_score, risk_level, top_risk_factors, recommendation,
			screen_flags, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		assessment.ID, tenantID, assessment.ClaimID, isFraud, assessment.FraudProbability,
		assessment.RiskScore, string(assessment.RiskLevel), string(factors), string(recommendation),
		string(flags), assessment.Timestamp, string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.RiskAssessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := assessmentSelect + ` WHERE tenant_id = ? AND id = ?`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID)

	assessment, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return assessment, err
}

// GetAssessmentByClaim retrieves the most recent assessment for a claim.
func (r *SQLRepository) GetAssessmentByClaim(ctx context.Context, tenantID string, claimID string) (*domain.RiskAssessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := assessmentSelect + `
		WHERE tenant_id = ? AND claim_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID)

	assessment, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return assessment, err
}

const assessmentSelect = `
	SELECT id, tenant_id, claim_id, is_fraud, fraud_probability,
		   risk_score, risk_level, top_risk_factors, recommendation,
		   screen_flags, timestamp, metadata
	FROM assessments
`

func scanAssessment(row rowScanner) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var isFraud int
	var level, factors, recommendation, flags, metadata string

	err := row.Scan(
		&a.ID, &a.TenantID, &a.ClaimID, &isFraud, &a.FraudProbability,
		&a.RiskScore, &level, &factors, &recommendation,
		&flags, &a.Timestamp, &metadata,
	)
	if err != nil {
		return nil, err
	}

	a.IsFraud = isFraud == 1
	a.RiskLevel = domain.RiskLevel(level)

	if err := json.Unmarshal([]byte(factors), &a.TopRiskFactors); err != nil {
		return nil, fmt.Errorf("failed to decode risk factors: %w", err)
	}
	if err := json.Unmarshal([]byte(recommendation), &a.Recommendation); err != nil {
		return nil, fmt.Errorf("failed to decode recommendation: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &a.ScreenFlags); err != nil {
		return nil, fmt.Errorf("failed to decode screen flags: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &a, nil
}

// SaveScreenRule stores a screening rule with tenant isolation.
// Saving the same (id, version) again updates the stored rule.
func (r *SQLRepository) SaveScreenRule(ctx context.Context, tenantID string, rule *domain.ScreenRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO screen_rules (
			id, tenant_id, name, description, version, expression,
			severity, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Severity, rule.Reason, enabled,
		now, now,
	)
	return err
}

// GetScreenRule retrieves the latest enabled version of a screening rule.
func (r *SQLRepository) GetScreenRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreenRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, severity, reason, enabled
		FROM screen_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.ScreenRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Severity, &rule.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListScreenRules retrieves all enabled screening rules for a tenant.
func (r *SQLRepository) ListScreenRules(ctx context.Context, tenantID string) ([]*domain.ScreenRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, severity, reason, enabled
		FROM screen_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreenRule
	for rows.Next() {
		var rule domain.ScreenRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.Severity, &rule.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteScreenRule disables all versions of a screening rule.
func (r *SQLRepository) DeleteScreenRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE screen_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordProviderClaim increments the observed counters for a provider.
func (r *SQLRepository) RecordProviderClaim(ctx context.Context, tenantID string, providerID string, highCost bool) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	highCostInc := 0
	if highCost {
		highCostInc = 1
	}

	query := `
		INSERT INTO provider_stats (tenant_id, provider_id, claims_count, high_cost_count, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(tenant_id, provider_id) DO UPDATE SET
			claims_count = provider_stats.claims_count + 1,
			high_cost_count = provider_stats.high_cost_count + excluded.high_cost_count,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, providerID, highCostInc, time.Now().UTC(),
	)
	return err
}

// GetProviderStats retrieves the observed counters for a provider.
// A provider with no recorded claims yields zero counters, not ErrNotFound.
func (r *SQLRepository) GetProviderStats(ctx context.Context, tenantID string, providerID string) (*domain.ProviderStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, provider_id, claims_count, high_cost_count, updated_at
		FROM provider_stats
		WHERE tenant_id = ? AND provider_id = ?
	`

	var stats domain.ProviderStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, providerID).Scan(
		&stats.TenantID, &stats.ProviderID, &stats.ClaimsCount, &stats.HighCostCount, &stats.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ProviderStats{TenantID: tenantID, ProviderID: providerID}, nil
	}
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
