// Package database opens the PostgreSQL pool used by the entity mirror.
//
// The mirror is optional. When database.enabled is false no pool is opened
// and merged entities live only in the in-memory cache.
package database
