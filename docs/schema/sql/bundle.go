// Package sqldocs exposes the irrigation schema DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL bundle.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL bundle.
//
//go:embed postgres.sql
var Postgres string

// MySQL contains the MySQL DDL bundle.
//
//go:embed mysql.sql
var MySQL string
