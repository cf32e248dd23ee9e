// Package webhooks signs and delivers pipeline notifications and verifies the
// signature of notifications received from peer services.
//
// Bodies are the canonical JSON encoding of core.WebhookPayload. Signatures
// are EIP-191 personal-sign signatures over that body, carried in a single
// header, and are checked against the oracle addresses registered on the
// escrow the payload refers to.
package webhooks
