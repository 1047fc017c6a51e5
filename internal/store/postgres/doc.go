// Package postgres implements importer.Store on PostgreSQL with pgx.
//
// The store expects the following tables (migrations are managed outside
// this repository):
//
//	platforms          (id bigserial PK, name text UNIQUE NOT NULL)
//	component_types    (id bigserial PK, name text UNIQUE NOT NULL)
//	materials          (id bigserial PK, name text UNIQUE NOT NULL)
//	customers          (id bigserial PK, name text NOT NULL, phone text, email text,
//	                    address text, note text, last_contact_at timestamptz,
//	                    created_by bigint, assigned_to bigint, created_at timestamptz,
//	                    updated_by bigint, updated_at timestamptz)
//	customer_platforms (customer_id bigint REFERENCES customers,
//	                    platform_id bigint REFERENCES platforms,
//	                    user_id bigint)
//	screws             (id bigserial PK, name text NOT NULL,
//	                    component_type_id bigint REFERENCES component_types,
//	                    material_id bigint REFERENCES materials,
//	                    size text, quantity bigint, price numeric, unit text, note text,
//	                    received_at timestamptz, created_by bigint, assigned_to bigint,
//	                    created_at timestamptz, updated_by bigint, updated_at timestamptz)
//
// Reference inserts run inside a savepoint so that a unique violation caused
// by a concurrent writer leaves the import transaction usable for a retry.
package postgres
