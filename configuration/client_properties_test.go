package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildClientProperties(t *testing.T) {
	t.Run("contains the identification entries", func(t *testing.T) {
		props := buildClientProperties("Orders")

		assert.Equal(t, "nservicebus-go", props["client_api"])
		assert.Equal(t, "Orders", props["endpoint_name"])
		assert.Equal(t, majorMinorBuild(Version), props["adapter_version"])
		assert.NotEmpty(t, props["runtime_version"])
		assert.NotEmpty(t, props["machine_name"])
		assert.Contains(t, props, "user")
	})

	t.Run("is deterministic for a fixed endpoint name", func(t *testing.T) {
		assert.Equal(t, buildClientProperties("Orders"), buildClientProperties("Orders"))
	})
}

func TestMajorMinorBuild(t *testing.T) {
	assert.Equal(t, "1.2.3", majorMinorBuild("1.2.3.4"))
	assert.Equal(t, "1.2.3", majorMinorBuild("1.2.3"))
	assert.Equal(t, "1.23", majorMinorBuild("1.23"))
}

func TestDeprecatedSetters(t *testing.T) {
	cfg := &ConnectionConfiguration{}

	t.Run("every removed entry point fails with a replacement hint", func(t *testing.T) {
		errs := []error{
			cfg.SetDequeueTimeout(0),
			cfg.SetMaxWaitTimeForConfirms(0),
			cfg.SetPrefetchCount(0),
			cfg.SetUsePublisherConfirms(false),
		}
		for _, err := range errs {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "has been removed")
			assert.Contains(t, err.Error(), "3.0.0")
		}
	})
}
