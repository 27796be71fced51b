// Package logger provides structured logging built on log/slog.
//
// New builds a *slog.Logger from functional options. Environment presets set
// format and level in one call:
//
//	log := logger.New(logger.WithProduction("transmitd"))
//	log := logger.NewFromEnv(os.Getenv("APP_ENV"), "transmitd")
//
// Context extractors inject request-scoped values into every *Context call:
//
//	log := logger.New(
//		logger.WithJSONFormatter(),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "subscribed")
//
// # Attributes
//
// Helpers build consistently named attributes. Helpers for optional values
// return an empty slog.Attr, which slog drops:
//
//	log.Info("stream connected",
//		logger.Component("transmit"),
//		logger.UID(uid),
//		logger.Channel(channel),
//		logger.Error(err), // omitted when err is nil
//	)
//
// Library packages in this module never log by default. They accept a
// *slog.Logger via a WithLogger option and fall back to Discard.
package logger
