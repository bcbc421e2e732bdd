// Package hub routes gateway traffic between the device-facing connector,
// the cloud relay and the local subsystems.
//
// Every inbound message, whether it arrives from the device broker, the cloud
// listener, the system-performance sampler or the HTTP API, enters through
// HandleMessage with its resource kind and raw JSON text. The hub decodes the
// payload into the matching record and dispatches it:
//
//	SensorMsg          -> persist, threshold monitor, cloud forward
//	ActuatorCmd        -> published to the device connector
//	ActuatorResponse   -> latest-response table, persist
//	SystemPerfMsg      -> cloud forward
//	MgmtStatus*        -> logged
//
// A corrective command emitted by the threshold monitor is published to the
// device connector immediately.
//
// # Lifecycle
//
// Start brings subsystems up device connector first, then the cloud relay,
// then the sampler, then the server. Stop reverses the producers first:
// sampler, device connector (unsubscribe, disconnect), cloud relay, server.
// Each stop step runs even if an earlier one failed; failures are logged.
//
// # Thread Safety
//
// Handlers run on transport callback goroutines and may be called
// concurrently. Threshold evaluation is serialised by the monitor; the
// latest-response table is guarded by its own mutex.
package hub
