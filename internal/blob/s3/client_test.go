package s3blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", withScheme("minio.local:9000", true))
	assert.Equal(t, "http://minio.local:9000", withScheme("minio.local:9000", false))
	assert.Equal(t, "http://minio.local:9000", withScheme("http://minio.local:9000", true))
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	_, err = New(context.Background(), ClientConfig{Bucket: "outcomes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}
