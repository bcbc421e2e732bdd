// Package api implements the gateway's HTTP request/response server.
//
// Constrained devices that cannot hold an MQTT session post their records
// here instead; every accepted record enters the same routing path as one
// received over MQTT. The server also exposes the gateway's live state:
//   - POST /api/v1/resources/{resource}: submit a record for a resource
//   - GET  /api/v1/health: connector states
//   - GET  /api/v1/responses: latest actuator response per actuator type
//   - GET  /api/v1/threshold: threshold monitor state
//   - GET  /api/v1/stats: routing counters and runtime figures
//   - GET  /api/v1/ws: WebSocket feed of routed records
//   - GET  /metrics: Prometheus exposition
//
// # Resource addressing
//
// A resource is addressed by its full topic ("PIOT/ConstrainedDevice/SensorMsg"),
// by "<Scope>/<Name>", or by a bare name, which resolves within the
// ConstrainedDevice scope.
//
// # Event feed
//
// WebSocket clients subscribe to channels ("telemetry", "command",
// "response", "metrics"), either with ?channels=a,b on connect or with a
// subscribe frame, and receive an "event" frame for every record the hub
// routes on that channel. Unknown channel names are listed as rejected in
// the ack. Slow clients drop events rather than stall routing.
package api
