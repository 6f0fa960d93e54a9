// Package device runs a simulated HTLVC device: it loads a profile, registers
// the engine once, and serves the stream, WebSocket, and admin surfaces until
// shutdown.
package device
