package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: every credential
// that is set reads "***" and slices are cloned.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, s := range []*string{
		&out.Oracle.ApiKey,
		&out.Custody.ApiKey,
		&out.Custody.ApiSecret,
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.ApiKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}
