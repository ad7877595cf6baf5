// Package database provides the storage side of entorm: the Adapter the
// repository talks to, connection management for mysql, postgres and sqlite
// on top of Bun, table creation for registered entities, foreign keys,
// configuration, query hooks and logging.
package database
