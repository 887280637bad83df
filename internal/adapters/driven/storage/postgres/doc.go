// Package postgres implements the ragpipe storage ports on PostgreSQL through
// the pgx database/sql driver. The task broker leases rows with
// FOR UPDATE SKIP LOCKED, so several worker processes can share one queue.
package postgres
