// Package store provides the durable key/value storage behind the SDK.
//
// Values are scoped by a profile name (the preferences file of the original
// app), and each profile exposes four typed accessors through KV:
//   - GetString / SetString
//   - GetInt64 / SetInt64
//
// Three backends implement KV:
//   - SQLite (Open + Namespace), the default durable store
//   - Memory, for tests and throwaway runs
//   - Redis (NewRedisKV), one hash per profile, for shared deployments
//
// Individual reads and writes are atomic per key. Callers that need
// read-modify-write sequences across keys hold their own lock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
