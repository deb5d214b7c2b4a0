// Package logging provides structured logging for trbr.
//
// This package wraps a zap logger. Logging is silent unless a level is set
// through --log-level or the TRBR_LOG_LEVEL environment variable, so decode
// output is never mixed with diagnostics by default.
//
// # Log Levels
//
//   - Debug: gdb command lines, stub packets, parsed registers
//   - Info: decode phases (parse, resolve, format)
//   - Warn: heuristic gaps (skipped core dump tasks, globals unavailable)
//   - Error: failures surfaced to the user
//
// # Structured Logging
//
// Components receive a *zap.Logger through their constructors and log with
// structured fields:
//
//	logger.Debug("Resolving addresses",
//	    zap.String("elf", elfPath),
//	    zap.Int("count", len(addrs)),
//	)
//
// Protocol traffic can be dumped with LogRawBytes:
//
//	logging.LogRawBytes(logger, "stub packet received", buf[:n])
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
