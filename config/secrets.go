package config

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Chain.PrivateKey)
	redact(&out.Redis.Password)
	if out.Store.Driver == "postgres" {
		redact(&out.Store.DSN)
	}

	out.Oracle.Gateways = append([]string(nil), cfg.Oracle.Gateways...)
	out.Oracle.AuthorizedSigners = append([]string(nil), cfg.Oracle.AuthorizedSigners...)
	out.Sizing.Priority = append([]string(nil), cfg.Sizing.Priority...)
	out.Notify.MixinRecipients = append([]string(nil), cfg.Notify.MixinRecipients...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Unstake.Methods = append([]UnstakeMethod(nil), cfg.Unstake.Methods...)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
