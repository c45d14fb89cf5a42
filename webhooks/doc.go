// Package webhooks contains the outbound delivery engine.
//
// Deliveries move through a small state machine:
// pending -> delivered|failed, failed -> delivered|failed|dead_letter.
// Terminal states never transition out, so a dead-lettered delivery stays
// inspectable instead of silently re-entering the queue.
package webhooks
