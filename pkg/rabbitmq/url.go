package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidAMQPURL is returned for broker URLs that are not amqp:// or amqps://.
var ErrInvalidAMQPURL = errors.New("rabbitmq: url must use the amqp or amqps scheme")

// sanitizeAMQPURL accepts the forms env files produce: surrounding whitespace and
// quotes, or a leftover "KEY=" in front of the scheme.
func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if start := strings.Index(strings.ToLower(clean), "amqp"); start > 0 {
		clean = clean[start:]
	}

	parsed, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAMQPURL, err)
	}
	switch parsed.Scheme {
	case "amqp", "amqps":
	default:
		return "", ErrInvalidAMQPURL
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidAMQPURL)
	}
	return clean, nil
}
