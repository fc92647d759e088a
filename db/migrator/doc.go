// Package migrator applies and reverts the SQL schema migrations of the
// database.
//
// Migrations are read from a filesystem as pairs of {id}-{name}.up.sql and
// {id}-{name}.down.sql files. Applied migrations are recorded in the
// _migrations table, so running them again only applies what's missing.
package migrator
