// Package storage provides generation record storage implementations.
//
// Records are metadata only (parameters, resolved seed, timings, status) and
// expire after a TTL. Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: bounded in-process store
package storage
