package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		role VARCHAR(32) NOT NULL,
		full_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(50) NOT NULL UNIQUE,
		kind VARCHAR(10) NOT NULL,
		client_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'DRAFT',
		engagement_type VARCHAR(20),
		parent_msa_id BIGINT REFERENCES contracts(id),
		project_name VARCHAR(255),
		scope TEXT,
		effective_start DATE,
		effective_end DATE,
		value NUMERIC(16,2) NOT NULL DEFAULT 0,
		currency VARCHAR(16),
		payment_terms VARCHAR(128),
		invoicing_cycle VARCHAR(64),
		billing_day VARCHAR(64),
		tax_withholding VARCHAR(16),
		ip_ownership VARCHAR(128),
		governing_law VARCHAR(64),
		vendor_contact_name VARCHAR(255),
		vendor_contact_email VARCHAR(255),
		assignee_id BIGINT NOT NULL,
		reviewer_id BIGINT,
		review_action VARCHAR(32),
		review_notes TEXT,
		baseline_frozen BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_client_id ON contracts (client_id);`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts (status);`,
	`CREATE TABLE IF NOT EXISTS change_requests (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(50) NOT NULL UNIQUE,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		type VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'DRAFT',
		title VARCHAR(255),
		summary TEXT,
		reason TEXT,
		effective_from DATE,
		effective_until DATE,
		dev_hours INT,
		test_hours INT,
		new_end_date DATE,
		delay_days INT,
		additional_cost NUMERIC(16,2),
		created_by BIGINT NOT NULL,
		internal_reviewer_id BIGINT,
		review_notes TEXT,
		appendix_id BIGINT,
		approved_by BIGINT,
		approved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_change_requests_contract_id ON change_requests (contract_id);`,
	`CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests (status);`,
	`CREATE TABLE IF NOT EXISTS engaged_engineers (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		baseline BOOLEAN NOT NULL DEFAULT FALSE,
		role VARCHAR(64),
		level VARCHAR(64),
		billing_type VARCHAR(16) NOT NULL DEFAULT 'MONTHLY',
		rating NUMERIC(8,2) NOT NULL DEFAULT 0,
		monthly_salary NUMERIC(16,2) NOT NULL DEFAULT 0,
		hourly_rate NUMERIC(16,2) NOT NULL DEFAULT 0,
		hours NUMERIC(10,2) NOT NULL DEFAULT 0,
		start_date DATE,
		end_date DATE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_engaged_engineers_contract ON engaged_engineers (contract_id, baseline);`,
	`CREATE TABLE IF NOT EXISTS billing_details (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		baseline BOOLEAN NOT NULL DEFAULT FALSE,
		billing_name VARCHAR(255),
		milestone VARCHAR(255),
		percentage NUMERIC(5,2),
		payment_date DATE,
		amount NUMERIC(16,2) NOT NULL DEFAULT 0,
		note TEXT,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		source_cr_id BIGINT REFERENCES change_requests(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_billing_details_contract ON billing_details (contract_id, baseline);`,
	`CREATE TABLE IF NOT EXISTS milestones (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		name VARCHAR(255) NOT NULL,
		payment_percentage NUMERIC(5,2) NOT NULL DEFAULT 0,
		planned_end DATE,
		delivery_note TEXT,
		position INT NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_milestones_contract ON milestones (contract_id);`,
	`CREATE TABLE IF NOT EXISTS resource_deltas (
		id BIGSERIAL PRIMARY KEY,
		change_request_id BIGINT NOT NULL REFERENCES change_requests(id),
		action VARCHAR(10) NOT NULL,
		position INT NOT NULL DEFAULT 0,
		engineer_id BIGINT,
		role VARCHAR(64),
		level VARCHAR(64),
		billing_type VARCHAR(16),
		rating_old NUMERIC(8,2), rating_new NUMERIC(8,2),
		rate_old NUMERIC(16,2), rate_new NUMERIC(16,2),
		hours_old NUMERIC(10,2), hours_new NUMERIC(10,2),
		start_date_old DATE, start_date_new DATE,
		end_date_old DATE, end_date_new DATE,
		effective_from DATE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_resource_deltas_cr ON resource_deltas (change_request_id);`,
	`CREATE TABLE IF NOT EXISTS billing_deltas (
		id BIGSERIAL PRIMARY KEY,
		change_request_id BIGINT NOT NULL REFERENCES change_requests(id),
		position INT NOT NULL DEFAULT 0,
		payment_date DATE,
		amount NUMERIC(16,2) NOT NULL DEFAULT 0,
		note TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_billing_deltas_cr ON billing_deltas (change_request_id);`,
	`CREATE TABLE IF NOT EXISTS resource_events (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		change_request_id BIGINT NOT NULL REFERENCES change_requests(id),
		appendix_id BIGINT NOT NULL,
		seq INT NOT NULL DEFAULT 0,
		action VARCHAR(10) NOT NULL,
		engineer_id BIGINT,
		role VARCHAR(64),
		level VARCHAR(64),
		billing_type VARCHAR(16),
		rating_old NUMERIC(8,2), rating_new NUMERIC(8,2),
		rate_old NUMERIC(16,2), rate_new NUMERIC(16,2),
		hours_old NUMERIC(10,2), hours_new NUMERIC(10,2),
		start_date_old DATE, start_date_new DATE,
		end_date_old DATE, end_date_new DATE,
		effective_from DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_resource_events_contract ON resource_events (contract_id, effective_from, seq);`,
	`CREATE TABLE IF NOT EXISTS contract_appendices (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		change_request_id BIGINT NOT NULL UNIQUE REFERENCES change_requests(id),
		number INT NOT NULL,
		code VARCHAR(50) NOT NULL,
		title VARCHAR(255) NOT NULL,
		summary TEXT,
		pdf_key VARCHAR(500),
		signed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_appendix_number ON contract_appendices (contract_id, number);`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT REFERENCES contracts(id),
		change_request_id BIGINT REFERENCES change_requests(id),
		action VARCHAR(32) NOT NULL,
		detail TEXT,
		actor_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_history_contract ON history_entries (contract_id);`,
	`CREATE INDEX IF NOT EXISTS idx_history_cr ON history_entries (change_request_id);`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id BIGSERIAL PRIMARY KEY,
		contract_id BIGINT REFERENCES contracts(id),
		change_request_id BIGINT REFERENCES change_requests(id),
		file_name VARCHAR(255) NOT NULL,
		key VARCHAR(255) NOT NULL UNIQUE,
		content_type VARCHAR(128),
		uploaded_by BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

func Migrate(database *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
