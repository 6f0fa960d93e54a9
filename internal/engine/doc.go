// Package engine owns inbound HTLVC processing.
//
// Ownership boundary:
// - one-shot tag dispatch registration
// - decode -> dispatch -> encode -> send for each delivered frame
// - nested record decomposition and recomposition
// - unsolicited report emission
//
// Lifecycle order:
// - NewRegistrar -> Register -> Process/SendReport
//
// - an Engine only exists after registration succeeded, so processing before
// registration cannot be expressed.
//
// - Engine serializes Process and SendReport internally; Loop is the single
// owner when several transports deliver concurrently.
package engine
