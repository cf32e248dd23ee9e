// Package inbound accepts webhook notifications from peer services.
//
// Intake verifies the sender signature, validates the payload and records an
// incoming webhook row. Redelivery of a known (chain, escrow, event) triple is
// acknowledged as deduped so peers stop retrying.
package inbound
