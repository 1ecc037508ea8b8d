package configuration

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Default values applied by Resolve for options absent from the
// connection string.
const (
	DefaultPort               = 5672
	DefaultTLSPort            = 5671
	DefaultVirtualHost        = "/"
	DefaultUserName           = "guest"
	DefaultPassword           = "guest"
	DefaultRequestedHeartbeat = uint16(5)
	DefaultRetryDelay         = 10 * time.Second
)

// ConnectionConfiguration is the fully resolved broker connection
// configuration. It is built once per endpoint by Resolve and never
// mutated afterwards; every field holds either an explicitly parsed
// value or its documented default.
type ConnectionConfiguration struct {
	Host        string
	Port        int
	VirtualHost string
	UserName    string
	Password    string

	// RequestedHeartbeat is the heartbeat interval in seconds
	// negotiated with the broker.
	RequestedHeartbeat uint16

	// RetryDelay is the delay between reconnection attempts after the
	// established connection is lost.
	RetryDelay time.Duration

	UseTLS         bool
	CertPath       string
	CertPassphrase string

	// ClientProperties is informational metadata surfaced to the broker
	// for diagnostics. It carries no protocol significance and never
	// affects routing.
	ClientProperties amqp.Table
}

// Heartbeat returns the requested heartbeat as a duration.
func (c *ConnectionConfiguration) Heartbeat() time.Duration {
	return time.Duration(c.RequestedHeartbeat) * time.Second
}

// URI returns the amqp(s) URI for dialing. The virtual host is not
// encoded into the URI; it is passed separately through the dial
// configuration.
func (c *ConnectionConfiguration) URI() string {
	scheme := "amqp"
	if c.UseTLS {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.UserName, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	return u.String()
}

// ConnectionString renders the configuration back into connection
// string form. Resolving the result yields an equal configuration.
func (c *ConnectionConfiguration) ConnectionString() string {
	s := fmt.Sprintf("host=%s;port=%d;virtualHost=%s;userName=%s;password=%s;requestedHeartbeat=%d;retryDelay=%s",
		c.Host, c.Port, c.VirtualHost, c.UserName, c.Password, c.RequestedHeartbeat, c.RetryDelay)
	if c.UseTLS {
		s += ";useTls=true"
	}
	if c.CertPath != "" {
		s += ";certPath=" + c.CertPath
	}
	if c.CertPassphrase != "" {
		s += ";certPassphrase=" + c.CertPassphrase
	}
	return s
}
