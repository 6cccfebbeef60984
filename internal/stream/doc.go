// Package stream implements the resilient real-time event-stream client
// that keeps the operator dashboard's live views (log stream, connection
// indicator, counters) synchronized with the appliance backend.
//
// Architecture:
//   - Client owns the single live session: ordered endpoint-candidate
//     failover, Disconnected/Connecting/Open/Closing transitions, and the
//     clean vs abnormal close paths.
//   - The reconnect scheduler retries abnormal closes with exponential
//     backoff (min(base*2^n, cap)) up to a terminal attempt budget.
//   - The heartbeat monitor probes liveness while open, classifies
//     connection quality, and force-closes silently dead sessions.
//   - Outbound messages produced while no session is open land in a bounded
//     drop-oldest FIFO and are flushed in order on reconnect.
//   - The inbound router classifies envelopes by discriminator, enhances
//     log-entry payloads, and fans out through per-channel subscriber lists.
//
// The transport is abstracted behind Dialer/Conn so the failure-handling
// policy is testable without network I/O; the production dialer speaks
// WebSocket.
package stream
