// Package transport carries HTLVC frames between hosts and the engine.
//
// Ownership boundary:
// - inbound: each transport reads one complete frame at a time and delivers
// it to the engine Loop tagged with its TransferMethod
// - outbound: Router implements the engine send callback and writes to the
// link currently attached for the frame's TransferMethod
//
// The engine never sees connections. A link failing repeatedly trips its
// circuit breaker and further sends fail fast until the cooldown expires.
package transport
