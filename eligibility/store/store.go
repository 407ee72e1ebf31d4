// Package store provides threshold store backends the ingestion pipeline
// writes to and the eligibility cache loads from: in-memory, Redis, MongoDB
// and PostgreSQL.
package store

import "github.com/manualkit/regent/eligibility"

var (
	_ eligibility.ThresholdStore = (*InMemoryStore)(nil)
	_ eligibility.ThresholdStore = (*RedisStore)(nil)
	_ eligibility.ThresholdStore = (*MongoStore)(nil)
	_ eligibility.ThresholdStore = (*PostgresStore)(nil)
)
