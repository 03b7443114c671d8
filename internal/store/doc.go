// Package store provides SQLite-backed durable storage for the message
// journal.
//
// Every message published on the bus is appended with its seq, subject,
// entity and content hash. The journal is append-only and can be read back
// in seq order to rebuild mirrors without the authoring context.
//
// # Ordering
//
//   - seq is the logical clock assigned by the bus, never a wall clock
//   - all reads ORDER BY seq ASC
//
// # Integrity
//
//   - data is canonical JSON of the message payload
//   - hash is protocol.MessageHash(seq, message); Verify recomputes it
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
package store
