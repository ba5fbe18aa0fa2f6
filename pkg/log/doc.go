// Package log defines the node's structured Logger, a zap backed implementation,
// a no-op logger, and span-aware wrapping for OpenTelemetry traces.
//
//	lg := log.NewZapLogger(log.Config{Format: "logfmt", Level: log.LevelDebug})
//	ctx = log.SetContextLogger(ctx, lg.WithName("channel"))
//	log.FromContext(ctx).Info("instructions applied", "nonce", nonce)
package log
