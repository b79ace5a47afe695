package admin

import (
	gatewaycore "github.com/ferro-labs/gateway-core"
)

const redacted = "[REDACTED]"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// Redact returns a copy of cfg with every literal secret masked. Names of
// environment variables are kept.
func Redact(cfg gatewaycore.Config) gatewaycore.Config {
	cfg.Providers = redactProviders(cfg.Providers)

	tokens := make([]gatewaycore.AdminToken, len(cfg.Admin.Tokens))
	for i, tok := range cfg.Admin.Tokens {
		tok.Token = mask(tok.Token)
		tokens[i] = tok
	}
	cfg.Admin.Tokens = tokens

	notifications := make([]gatewaycore.NotificationConfig, len(cfg.Notifications))
	for i, n := range cfg.Notifications {
		if len(n.Config) > 0 {
			conf := make(map[string]interface{}, len(n.Config))
			for k, v := range n.Config {
				switch k {
				case "dsn", "url", "password":
					conf[k] = redacted
				default:
					conf[k] = v
				}
			}
			n.Config = conf
		}
		notifications[i] = n
	}
	cfg.Notifications = notifications
	return cfg
}

func redactProviders(list []gatewaycore.ProviderConfig) []gatewaycore.ProviderConfig {
	out := make([]gatewaycore.ProviderConfig, len(list))
	for i, p := range list {
		p.APIKey = mask(p.APIKey)
		if p.AWS != nil {
			aws := *p.AWS
			aws.AccessKeyID = mask(aws.AccessKeyID)
			aws.SecretAccessKey = mask(aws.SecretAccessKey)
			aws.SessionToken = mask(aws.SessionToken)
			p.AWS = &aws
		}
		if p.OAuth2 != nil {
			o := *p.OAuth2
			o.ClientSecret = mask(o.ClientSecret)
			p.OAuth2 = &o
		}
		if len(p.Headers) > 0 {
			headers := make(map[string]string, len(p.Headers))
			for k := range p.Headers {
				headers[k] = redacted
			}
			p.Headers = headers
		}
		out[i] = p
	}
	return out
}
