// Package telemetry records tool calls with OpenTelemetry.
//
// Each tools/call becomes a server span named "tool <name>" and increments
// the qrmax.tool.invocations counter. Failures also increment
// qrmax.tool.failures labelled with the admission error kind, and every
// call records qrmax.tool.latency. Span status messages carry only the
// public error text.
//
// Traces are exported over OTLP/HTTP when an endpoint is configured.
package telemetry
