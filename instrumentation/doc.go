// Package instrumentation provides OpenTelemetry metrics and tracing for
// the OAuth library. When disabled (the default), no-op providers are used
// and the overhead is zero; hosts wire real providers through Config.
package instrumentation
