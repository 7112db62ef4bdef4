package webhooks

import (
	"net"
	"net/url"
	"strings"

	"github.com/zedaapi/instance-gateway/internal/apierr"
)

var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("webhooks: invalid CIDR literal " + cidr)
		}
		nets = append(nets, n)
	}
	return nets
}

// validateURL enforces HTTP(S)-only URLs, rejecting loopback/RFC1918
// targets unless allowPrivateTargets is set (non-production deployments).
func validateURL(raw string, allowPrivateTargets bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return apierr.Validation("invalid url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return apierr.Validation("url scheme must be http or https")
	}
	if allowPrivateTargets {
		return nil
	}

	host := parsed.Hostname()
	if host == "" {
		return apierr.Validation("url must include a host")
	}
	if strings.EqualFold(host, "localhost") {
		return apierr.Validation("url must not point at a loopback or private address")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts are allowed through; the dispatcher will fail
		// the delivery itself rather than the repository rejecting the URL.
		return nil
	}
	for _, ip := range ips {
		for _, cidr := range privateCIDRs {
			if cidr.Contains(ip) {
				return apierr.Validation("url must not point at a loopback or private address")
			}
		}
	}
	return nil
}

func validateEvents(events []string) ([]EventKind, error) {
	out := make([]EventKind, 0, len(events))
	for _, raw := range events {
		if !IsValidEventKind(raw) {
			return nil, apierr.Validation("unknown event kind %q", raw)
		}
		out = append(out, EventKind(raw))
	}
	return out, nil
}

func validateAuthentication(auth Authentication) error {
	switch auth.Type {
	case AuthNone, "":
		return nil
	case AuthBearer:
		if auth.Token == "" {
			return apierr.Validation("bearer authentication requires a token")
		}
	case AuthBasic:
		if auth.User == "" || auth.Pass == "" {
			return apierr.Validation("basic authentication requires user and pass")
		}
	case AuthAPIKey:
		if auth.Token == "" || auth.Header == "" {
			return apierr.Validation("apiKey authentication requires token and header")
		}
	case AuthJWT:
		if auth.JWTSecret == "" {
			return apierr.Validation("jwt authentication requires jwtSecret")
		}
	default:
		return apierr.Validation("unknown authentication type %q", auth.Type)
	}
	return nil
}

func validateSecurityConfig(cfg SecurityConfig) error {
	if !cfg.EnableSignatureValidation {
		return nil
	}
	if len(cfg.Secret) < 16 {
		return apierr.Validation("signature secret must be at least 16 characters")
	}
	switch cfg.Algorithm {
	case "sha256", "sha1", "md5":
	case "":
		cfg.Algorithm = "sha256"
	default:
		return apierr.Validation("unsupported signature algorithm %q", cfg.Algorithm)
	}
	return nil
}

func validateRetryConfig(cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 20 {
		return apierr.Validation("retryConfig.maxAttempts must be between 1 and 20")
	}
	if cfg.InitialDelaySeconds < 1 || cfg.InitialDelaySeconds > 300 {
		return apierr.Validation("retryConfig.initialDelaySeconds must be between 1 and 300")
	}
	if cfg.MaxDelaySeconds < 1 || cfg.MaxDelaySeconds > 3600 {
		return apierr.Validation("retryConfig.maxDelaySeconds must be between 1 and 3600")
	}
	if cfg.JitterFactor < 0 || cfg.JitterFactor > 1 {
		return apierr.Validation("retryConfig.jitterFactor must be between 0 and 1")
	}
	return nil
}

func validateTimeout(timeoutMs int) error {
	if timeoutMs < 1000 || timeoutMs > 60000 {
		return apierr.Validation("timeout must be between 1000 and 60000 milliseconds")
	}
	return nil
}
