// Package logx wraps zerolog behind a small structured-logging API.
//
// It exposes a value-type Logger with Field closures (String, Int, Err, ...)
// and a Service that owns the configured sinks. Service.Apply swaps sinks and
// levels at runtime, so a config hot-reload can retarget logging without
// touching every Logger handed out earlier.
//
// Sinks: console (human-readable), append-only file, and an optional
// rate-limited Telegram sink that forwards high-severity lines to the
// operator chat.
package logx
