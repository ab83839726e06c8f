package clustercalc

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStaticCalculator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.yaml")
	content := "default: us-east\nhosts:\n  svc.us-west.example.com: us-west\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	c, err := LoadStaticCalculator(path)
	require.NoError(t, err)
	assert.Equal(t, "us-east", c.Default())

	req := httptest.NewRequest(http.MethodGet, "http://svc.us-west.example.com/token", nil)
	req.Host = "svc.us-west.example.com"
	assert.Equal(t, "us-west", c.Calculate(req))

	reqDefault := httptest.NewRequest(http.MethodGet, "http://unknown.example.com/token", nil)
	reqDefault.Host = "unknown.example.com"
	assert.Equal(t, "us-east", c.Calculate(reqDefault))
}
