package dbx

// schemaV1 creates every table enumerated in the data model. Money columns
// are NUMERIC(10,2); primary keys are UUIDs; every tenant-scoped table
// carries tenant_id, and most have an index or unique constraint leading
// with it (families, subfamilies, discounts, cash_closings and
// refresh_tokens have none).
const schemaV1 = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	plan TEXT NOT NULL DEFAULT 'standard',
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sites (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_super_admin_username ON users(username) WHERE tenant_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_username ON users(tenant_id, username) WHERE tenant_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_hash ON refresh_tokens(token_hash);

CREATE TABLE IF NOT EXISTS dining_tables (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	table_number TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'AVAILABLE',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, site_id, table_number)
);
CREATE INDEX IF NOT EXISTS idx_dining_tables_status ON dining_tables(tenant_id, site_id, status);

CREATE TABLE IF NOT EXISTS blacklist_entries (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	entity_type TEXT NOT NULL,
	entity_value TEXT NOT NULL,
	reason TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, entity_type, entity_value)
);

CREATE TABLE IF NOT EXISTS families (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS subfamilies (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	subfamily_id UUID NOT NULL REFERENCES subfamilies(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	base_price NUMERIC(10,2) NOT NULL,
	available BOOLEAN NOT NULL DEFAULT true,
	print_zone TEXT NOT NULL DEFAULT 'kitchen'
);
CREATE INDEX IF NOT EXISTS idx_items_tenant ON items(tenant_id);

CREATE TABLE IF NOT EXISTS customers (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	tax_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, phone)
);
CREATE INDEX IF NOT EXISTS idx_customers_phone_reversed ON customers(tenant_id, reverse(phone));

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	table_id UUID REFERENCES dining_tables(id),
	customer_id UUID REFERENCES customers(id),
	order_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'OPEN',
	total_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_tenant_status ON orders(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_orders_tenant_table ON orders(tenant_id, table_id);
CREATE INDEX IF NOT EXISTS idx_orders_tenant_customer ON orders(tenant_id, customer_id);

CREATE TABLE IF NOT EXISTS order_lines (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	item_id UUID NOT NULL REFERENCES items(id),
	quantity INTEGER NOT NULL,
	unit_price NUMERIC(10,2) NOT NULL,
	modifiers JSONB NOT NULL DEFAULT '{}',
	notes TEXT,
	status TEXT NOT NULL DEFAULT 'PENDING',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	voided_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(tenant_id, order_id);

CREATE TABLE IF NOT EXISTS consumptions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_line_id UUID NOT NULL REFERENCES order_lines(id) ON DELETE CASCADE,
	quantity INTEGER NOT NULL,
	confirmed_at TIMESTAMPTZ NOT NULL,
	voided_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_consumptions_line ON consumptions(tenant_id, order_line_id);

CREATE TABLE IF NOT EXISTS discounts (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	order_line_id UUID REFERENCES order_lines(id) ON DELETE CASCADE,
	discount_type TEXT NOT NULL,
	amount NUMERIC(10,2) NOT NULL,
	reason TEXT,
	applied_by UUID NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS printers (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	zone TEXT NOT NULL DEFAULT 'kitchen',
	status TEXT NOT NULL DEFAULT 'NORMAL',
	redirect_to_printer_id UUID REFERENCES printers(id),
	UNIQUE (tenant_id, site_id, name)
);

CREATE TABLE IF NOT EXISTS print_jobs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	order_line_id UUID NOT NULL REFERENCES order_lines(id) ON DELETE CASCADE,
	printer_id UUID NOT NULL REFERENCES printers(id),
	dedupe_key TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	dispatched_at TIMESTAMPTZ,
	UNIQUE (tenant_id, dedupe_key)
);
CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(tenant_id, status);

CREATE TABLE IF NOT EXISTS bill_splits (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	split_group_id UUID NOT NULL,
	amount NUMERIC(10,2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bill_splits_group ON bill_splits(tenant_id, split_group_id);
CREATE INDEX IF NOT EXISTS idx_bill_splits_order ON bill_splits(tenant_id, order_id);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	idempotency_key TEXT NOT NULL,
	amount NUMERIC(10,2) NOT NULL,
	method TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	terminal_transaction_id TEXT,
	split_group_id UUID REFERENCES bill_splits(id),
	version INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, idempotency_key)
);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payments(tenant_id, order_id);

CREATE TABLE IF NOT EXISTS fiscal_documents (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	order_id UUID NOT NULL REFERENCES orders(id),
	document_type TEXT NOT NULL,
	document_number INTEGER NOT NULL,
	customer_tax_id TEXT,
	total_amount NUMERIC(10,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, site_id, document_type, document_number)
);

CREATE TABLE IF NOT EXISTS cash_registers (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE (tenant_id, site_id, name)
);

CREATE TABLE IF NOT EXISTS cash_sessions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	register_id UUID NOT NULL REFERENCES cash_registers(id) ON DELETE CASCADE,
	employee_id UUID NOT NULL REFERENCES users(id),
	status TEXT NOT NULL DEFAULT 'OPEN',
	opening_amount NUMERIC(10,2) NOT NULL,
	actual_close NUMERIC(10,2),
	expected_close NUMERIC(10,2),
	variance NUMERIC(10,2),
	version INTEGER NOT NULL DEFAULT 1,
	opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	closed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_one_open ON cash_sessions(tenant_id, register_id) WHERE status = 'OPEN';

CREATE TABLE IF NOT EXISTS cash_movements (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	session_id UUID NOT NULL REFERENCES cash_sessions(id) ON DELETE CASCADE,
	movement_type TEXT NOT NULL,
	amount NUMERIC(10,2) NOT NULL,
	payment_id UUID REFERENCES payments(id),
	note TEXT,
	recorded_by UUID REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cash_movements_session ON cash_movements(tenant_id, session_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_movements_payment ON cash_movements(tenant_id, payment_id) WHERE payment_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS cash_closings (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	site_id UUID REFERENCES sites(id),
	closing_type TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	window_end TIMESTAMPTZ NOT NULL,
	total_sales NUMERIC(10,2) NOT NULL,
	total_refunds NUMERIC(10,2) NOT NULL,
	total_variance NUMERIC(10,2) NOT NULL,
	session_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
	actor_user_id UUID,
	entity_type TEXT NOT NULL,
	entity_id UUID,
	action TEXT NOT NULL,
	payload JSONB,
	trace_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at);
`
