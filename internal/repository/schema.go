package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    hospital_code TEXT NOT NULL,
    doctor_id TEXT NOT NULL,
    icd10_code TEXT NOT NULL,
    patient_age INTEGER,
    patient_gender TEXT NOT NULL,
    care_class TEXT NOT NULL,
    los_days INTEGER NOT NULL,
    num_procedures INTEGER NOT NULL,
    procedures TEXT,
    tarif_inacbg REAL NOT NULL,
    tarif_rs REAL NOT NULL,
    provider_claims_count INTEGER,
    provider_high_cost_rate REAL,
    submitted_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_hospital ON claims(tenant_id, hospital_code);
CREATE INDEX IF NOT EXISTS idx_claims_doctor ON claims(tenant_id, doctor_id);
CREATE INDEX IF NOT EXISTS idx_claims_submitted ON claims(tenant_id, submitted_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    is_fraud INTEGER NOT NULL,
    fraud_probability REAL NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    top_risk_factors TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    screen_flags TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_claim ON assessments(tenant_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_assessments_level ON assessments(tenant_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

const schemaScreenRules = `
CREATE TABLE IF NOT EXISTS screen_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'warning',
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_screen_rules_tenant ON screen_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screen_rules_enabled ON screen_rules(tenant_id, enabled);
`

// schemaProviderStats defines the per-provider counter table.
// One row per (tenant, provider); counters only move forward.
const schemaProviderStats = `
CREATE TABLE IF NOT EXISTS provider_stats (
    tenant_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    claims_count INTEGER NOT NULL DEFAULT 0,
    high_cost_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, provider_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaAssessments,
		schemaScreenRules,
		schemaProviderStats,
	}
}
