package repository

// Schema for the lead aging store. Every statement runs unchanged on
// SQLite and PostgreSQL.

const schemaLeads = `
CREATE TABLE IF NOT EXISTS leads (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    score REAL NOT NULL,
    estimated_value REAL NOT NULL,
    created_at TIMESTAMP NOT NULL,
    last_contact_at TIMESTAMP,
    next_follow_up_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_leads_source ON leads(tenant_id, source);
CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(tenant_id, created_at);
`

const schemaAgingRules = `
CREATE TABLE IF NOT EXISTS aging_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    category TEXT NOT NULL,
    min_days INTEGER NOT NULL,
    max_days INTEGER,
    base_risk TEXT NOT NULL,
    automatic_actions TEXT NOT NULL,
    notification_threshold INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_aging_rules_active ON aging_rules(tenant_id, active);
`

// schemaAnalyses keeps only the latest analysis per lead.
const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    lead_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    days_in_pipeline INTEGER NOT NULL,
    days_since_last_contact INTEGER NOT NULL,
    days_until_next_follow_up INTEGER NOT NULL,
    aging_category TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    recommended_action TEXT NOT NULL,
    conversion_probability REAL NOT NULL,
    urgency_score REAL NOT NULL,
    rule_id TEXT NOT NULL,
    analyzed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (lead_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_analyses_category ON analyses(tenant_id, aging_category);
CREATE INDEX IF NOT EXISTS idx_analyses_risk ON analyses(tenant_id, risk_level);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    lead_count INTEGER NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id, generated_at);
`

const schemaActionPolicies = `
CREATE TABLE IF NOT EXISTS action_policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    action_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_action_policies_enabled ON action_policies(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLeads,
		schemaAgingRules,
		schemaAnalyses,
		schemaReports,
		schemaActionPolicies,
	}
}
