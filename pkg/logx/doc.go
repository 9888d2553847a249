// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a small Logger value type with functional fields and a Service
// that owns the configured sinks (console, file). The Service can swap sinks
// and levels at runtime via Apply(); Loggers created from it stay live.
package logx
