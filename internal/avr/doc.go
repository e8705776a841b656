// Package avr implements the receiver control core for DiscoAVR.
//
// It maintains a single persistent telnet session to a Denon/Marantz
// style AV receiver, sends line-oriented commands, infers structured
// state from the receiver's asynchronous responses, and broadcasts
// consistent snapshots to registered observers.
//
// # Architecture
//
//	             ┌──────────────┐
//	 callers ───▶│  Controller   │───▶ StateListener (WebSocket hub,
//	             │              │      MQTT publisher, tests)
//	             │  ┌────────┐  │
//	             │  │ State  │  │───▶ StateHistoryRepository (SQLite)
//	             │  └────────┘  │
//	             └──────┬───────┘
//	                    │ one command / response token per line ("\r")
//	             ┌──────▼───────┐
//	             │  Transport    │───▶ receiver (TCP port 23)
//	             └──────────────┘
//
// The Controller owns the connection lifecycle: bounded exponential
// backoff on connect, forced disconnect on any send or read failure,
// and a one-shot reconnect-and-resend cycle for failed command writes.
// A background poller re-queries receiver state every poll interval so
// front-panel and remote-control changes are picked up without
// commands being issued.
//
// Response interpretation (Apply) is pure: one trimmed token in, field
// updates out, no I/O. State is mutated only under the controller's
// lock and observers always receive deep copies.
//
// Simulation mode replaces all device I/O with local state mutation so
// the full stack can be exercised without hardware.
package avr
