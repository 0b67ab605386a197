// Package checkpoint persists point-in-time snapshots of workflow state to a
// pluggable store and layers pause/resume/rollback on top.
//
// Reference stores:
//   - MemoryStore: per-thread ring buffer, oldest evicted first.
//   - GormStore: durable keyed store (sqlite/postgres) with
//     replace-on-same-id semantics.
//   - RedisStore: checkpoint blobs plus a per-thread sorted-set index.
//   - MongoStore: keyed upsert into a collection.
//
// The store is the only structure shared across workflow threads; every
// store guards itself (mutex or the backend's own transactional guarantees).
package checkpoint
