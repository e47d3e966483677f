// Package logging provides structured logging configuration for httpmocker.
//
// This package wraps log/slog so the controller, the supervisor and every
// spawned mock app log the same way.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatText,
//	    File:   "./httpmocker/server.log",
//	})
//
//	logger.Info("app started", "app_id", id, "port", 9000)
//
// When File is set, records go to both Output and a lumberjack-rotated file
// (1 MB, one backup).
//
// # Integration
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop().
package logging
