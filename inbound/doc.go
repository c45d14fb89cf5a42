// Package inbound is the transport-agnostic notification intake.
//
// Storefront notification paths use claim/complete/fail idempotency
// semantics so redelivered notifications are acknowledged without being
// reprocessed while transient reconciler failures remain retryable.
package inbound
