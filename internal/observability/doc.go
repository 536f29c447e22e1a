// Package observability owns the process-wide telemetry of the gateway:
// the zap logger, the Prometheus series catalog and its Registry, the
// Recorder that turns one observed request into metric updates, the
// system gauge collector and the bounded log of completed requests.
//
// Nothing here is global. main builds one Registry and passes it down.
package observability
