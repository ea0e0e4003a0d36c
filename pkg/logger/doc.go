// Package logger builds *slog.Logger instances for the marketplace services.
//
// New applies functional options (format, level, static attributes, context
// extractors). Context extractors run on every record and add attributes
// pulled from context.Context, such as the HTTP request id.
//
//	log := logger.New(logger.WithEnvironment("production", "sobernest"))
//	logger.SetAsDefault(log)
//	log.InfoContext(ctx, "grace period expired", logger.ProviderID(id), logger.Pass("grace_expiry"))
//
// Attribute helpers (Error, ProviderID, EventID, Pass, ...) keep key names
// consistent across packages. Error returns an empty attribute for nil errors,
// so it can be passed unconditionally.
package logger
