// Package writer mirrors merged entities into PostgreSQL.
//
// The entity writer batches every graph the normalizer merges and upserts
// one row per entity into the entities table. Attributes are merged with
// the jsonb || operator, so the table follows the same last-write-wins,
// never-delete rule as the in-memory cache.
package writer
