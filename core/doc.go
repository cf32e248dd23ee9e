// Package core contains the escrow completion pipeline: queue entities, the
// retry policy, the generic queue processor, the stage services and the
// advisory sweep lock. Stores, transports and chain adapters depend on this
// package; core must not depend on them.
package core
