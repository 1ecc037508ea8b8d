package configuration

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ValidationError carries the complete batch of connection string
// validation failures. Parsing never stops at the first bad option;
// every malformed, missing, or removed option contributes its own
// message.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.TrimSpace(strings.Join(e.Messages, "\n"))
}

// ResolveOption configures the resolver.
type ResolveOption func(*resolver)

// WithLogger sets the logger used to report validation failures.
func WithLogger(logger *slog.Logger) ResolveOption {
	return func(r *resolver) {
		r.logger = logger
	}
}

// Resolve parses a semicolon-delimited key=value connection string and
// returns a fully defaulted ConnectionConfiguration. Keys are matched
// case-insensitively; unrecognized keys are ignored. On failure the
// combined batch of validation messages is logged at error severity and
// returned as a *ValidationError; no partial configuration is ever
// returned.
func Resolve(connectionString, endpointName string, opts ...ResolveOption) (*ConnectionConfiguration, error) {
	r := &resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r.resolve(connectionString, endpointName)
}

type resolver struct {
	logger *slog.Logger
}

// parseState accumulates explicitly supplied values before the
// configuration is constructed. The configuration itself is only built
// after the whole string validated, so no partially applied state is
// observable on failure.
type parseState struct {
	host           string
	embeddedPort   int
	port           int
	portSet        bool
	virtualHost    string
	virtualHostSet bool
	userName       string
	userNameSet    bool
	password       string
	passwordSet    bool
	heartbeat      uint16
	heartbeatSet   bool
	retryDelay     time.Duration
	retryDelaySet  bool
	useTLS         bool
	certPath       string
	certPassphrase string

	errors []string
}

func (s *parseState) fail(format string, args ...any) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

// optionTable maps recognized lowercase option names to typed setters.
// Explicit setters replace the reflective property binding of older
// adapters: known keys with bad values are recorded, unknown keys are
// ignored for forward compatibility.
var optionTable = map[string]func(*parseState, string){
	"host":               setHost,
	"port":               setPort,
	"virtualhost":        func(s *parseState, v string) { s.virtualHost, s.virtualHostSet = v, true },
	"username":           func(s *parseState, v string) { s.userName, s.userNameSet = v, true },
	"password":           func(s *parseState, v string) { s.password, s.passwordSet = v, true },
	"requestedheartbeat": setRequestedHeartbeat,
	"retrydelay":         setRetryDelay,
	"usetls":             setUseTLS,
	"certpath":           func(s *parseState, v string) { s.certPath = v },
	"certpassphrase":     func(s *parseState, v string) { s.certPassphrase = v },
}

// removedOptions are rejected outright; their presence alone is an
// error regardless of the value supplied.
var removedOptions = map[string]string{
	"dequeuetimeout":         "the 'dequeueTimeout' connection string option has been removed, use the transport's circuit breaker wait time option instead",
	"maxwaittimeforconfirms": "the 'maxWaitTimeForConfirms' connection string option has been removed, publish confirmation waits are governed by the publish context deadline",
	"prefetchcount":          "the 'prefetchCount' connection string option has been removed, use the consumer prefetch count option instead",
	"usepublisherconfirms":   "the 'usePublisherConfirms' connection string option has been removed, publisher confirms are always enabled",
}

func (r *resolver) resolve(connectionString, endpointName string) (*ConnectionConfiguration, error) {
	state := &parseState{}

	for _, pair := range strings.Split(connectionString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, found := strings.Cut(pair, "=")
		if !found {
			state.fail("invalid connection string entry '%s', expected key=value", pair)
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if msg, removed := removedOptions[key]; removed {
			state.fail("%s", msg)
			continue
		}

		setter, known := optionTable[key]
		if !known {
			// Unknown keys are not validated here so broker library
			// specific options can pass through.
			continue
		}
		setter(state, value)
	}

	if state.host == "" {
		state.fail("invalid connection string, 'host' is required")
	}

	if len(state.errors) > 0 {
		err := &ValidationError{Messages: state.errors}
		r.logger.Error("connection string resolution failed", "error", err.Error())
		return nil, err
	}

	return buildConfiguration(state, endpointName), nil
}

func setHost(s *parseState, value string) {
	if strings.Contains(value, ",") {
		s.fail("multiple hosts are not supported in the connection string, use a load balancer in front of the broker nodes instead")
		return
	}
	host, portPart, found := strings.Cut(value, ":")
	if host == "" {
		s.fail("invalid connection string, 'host' is required")
		return
	}
	s.host = host
	if found {
		port, err := strconv.Atoi(portPart)
		if err != nil {
			s.fail("invalid port '%s' embedded in host value '%s'", portPart, value)
			return
		}
		s.embeddedPort = port
	}
}

func setPort(s *parseState, value string) {
	port, err := strconv.Atoi(value)
	if err != nil {
		s.fail("invalid integer value '%s' for 'port'", value)
		return
	}
	s.port = port
	s.portSet = true
}

func setRequestedHeartbeat(s *parseState, value string) {
	seconds, err := parseSeconds(value)
	if err != nil || seconds < 0 || seconds > int64(^uint16(0)) {
		s.fail("invalid value '%s' for 'requestedHeartbeat', expected an unsigned 16-bit number of seconds", value)
		return
	}
	s.heartbeat = uint16(seconds)
	s.heartbeatSet = true
}

func setRetryDelay(s *parseState, value string) {
	d, err := parseDelay(value)
	if err != nil {
		s.fail("invalid duration value '%s' for 'retryDelay'", value)
		return
	}
	s.retryDelay = d
	s.retryDelaySet = true
}

func setUseTLS(s *parseState, value string) {
	useTLS, err := strconv.ParseBool(value)
	if err != nil {
		s.fail("invalid boolean value '%s' for 'useTls'", value)
		return
	}
	s.useTLS = useTLS
}

// parseSeconds accepts a bare integer number of seconds or a duration
// string such as "30s".
func parseSeconds(value string) (int64, error) {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Second), nil
}

// parseDelay accepts a duration string such as "10s" or a bare integer
// interpreted as seconds.
func parseDelay(value string) (time.Duration, error) {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func buildConfiguration(state *parseState, endpointName string) *ConnectionConfiguration {
	cfg := &ConnectionConfiguration{
		Host:               state.host,
		VirtualHost:        DefaultVirtualHost,
		UserName:           DefaultUserName,
		Password:           DefaultPassword,
		RequestedHeartbeat: DefaultRequestedHeartbeat,
		RetryDelay:         DefaultRetryDelay,
		UseTLS:             state.useTLS,
		CertPath:           state.certPath,
		CertPassphrase:     state.certPassphrase,
	}

	cfg.Port = DefaultPort
	if state.useTLS {
		cfg.Port = DefaultTLSPort
	}
	if state.portSet {
		cfg.Port = state.port
	}
	// A port embedded in the host value wins over the port key.
	if state.embeddedPort != 0 {
		cfg.Port = state.embeddedPort
	}

	if state.virtualHostSet {
		cfg.VirtualHost = state.virtualHost
	}
	if state.userNameSet {
		cfg.UserName = state.userName
	}
	if state.passwordSet {
		cfg.Password = state.password
	}
	if state.heartbeatSet {
		cfg.RequestedHeartbeat = state.heartbeat
	}
	if state.retryDelaySet {
		cfg.RetryDelay = state.retryDelay
	}

	cfg.ClientProperties = buildClientProperties(endpointName)
	return cfg
}
