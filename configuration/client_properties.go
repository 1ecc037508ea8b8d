package configuration

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Version is the adapter library version surfaced through the
// connection client properties.
const Version = "2.1.0"

const clientAPIName = "nservicebus-go"

// buildClientProperties assembles the identification metadata attached
// to the broker connection. The entries are purely diagnostic; the
// broker management UI shows them per connection.
func buildClientProperties(endpointName string) amqp.Table {
	props := amqp.Table{
		"client_api":      clientAPIName,
		"adapter_version": majorMinorBuild(Version),
		"runtime_version": majorMinorBuild(strings.TrimPrefix(runtime.Version(), "go")),
		"endpoint_name":   endpointName,
	}

	if exe, err := os.Executable(); err == nil {
		props["application"] = filepath.Base(exe)
		props["application_location"] = filepath.Dir(exe)
	}
	if hostname, err := os.Hostname(); err == nil {
		props["machine_name"] = hostname
	}
	props["user"] = currentUserName()

	return props
}

// majorMinorBuild reduces a version string to at most three components.
func majorMinorBuild(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}

func currentUserName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return os.Getenv("USERNAME")
}
