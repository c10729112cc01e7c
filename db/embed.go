// Package db provides the embedded database schemas of each service.
package db

import _ "embed"

// CatalogSchema contains the DDL for the catalog service tables.
//
//go:embed migrations/001_catalog.sql
var CatalogSchema string

// IdentitySchema contains the DDL for the identity service tables.
//
//go:embed migrations/001_identity.sql
var IdentitySchema string

// OrderSchema contains the DDL and reference rows for the order service tables.
//
//go:embed migrations/001_order.sql
var OrderSchema string
