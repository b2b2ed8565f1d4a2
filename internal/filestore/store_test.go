package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowsource/internal/errs"
)

func TestParseObjectURI(t *testing.T) {
	bucket, key, err := ParseObjectURI("s3://fixtures/diff/orders.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "fixtures", bucket)
	assert.Equal(t, "diff/orders.xlsx", key)
	assert.Equal(t, "s3://fixtures/diff/orders.xlsx", ObjectURI(bucket, key))
}

func TestParseObjectURI_Invalid(t *testing.T) {
	for _, uri := range []string{"orders.xlsx", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, _, err := ParseObjectURI(uri)
		assert.True(t, errs.IsInvalidInput(err), uri)
	}
}

func TestConfig_Enabled(t *testing.T) {
	var nilCfg *Config
	assert.False(t, nilCfg.Enabled())
	assert.False(t, (&Config{}).Enabled())
	assert.True(t, DefaultConfig("localhost:9000", "a", "b").Enabled())
}
