package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/linkpath/pkg/types"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Search.MaxDepth)
	assert.Equal(t, 6, cfg.Search.LayerConcurrency)
	assert.Equal(t, 50, cfg.Classifier.ChunkSize)
	assert.Equal(t, 6, cfg.Classifier.Concurrency)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.NeighborsTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ExternalIDTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.ClassificationTTL)
	assert.Equal(t, "https://en.wikipedia.org/w/api.php", cfg.Wiki.APIURL)
	assert.Equal(t, 20*time.Second, cfg.Wiki.LinksTimeout)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("WIKI_API", "http://localhost:9000/w/api.php")
	t.Setenv("CACHE_TTL_WIKIBASE", "60")
	t.Setenv("CACHE_TTL_ISPERSON", "120")
	t.Setenv("CHUNK_SIZE", "10")
	t.Setenv("CONCURRENCY", "3")
	t.Setenv("PORT", "8081")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/w/api.php", cfg.Wiki.APIURL)
	assert.Equal(t, time.Minute, cfg.Cache.ExternalIDTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ClassificationTTL)
	assert.Equal(t, 10, cfg.Classifier.ChunkSize)
	assert.Equal(t, 3, cfg.Classifier.Concurrency)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"non numeric chunk size", "CHUNK_SIZE", "many"},
		{"zero chunk size", "CHUNK_SIZE", "0"},
		{"oversized chunk", "CHUNK_SIZE", "51"},
		{"bad ttl", "CACHE_TTL_WIKIBASE", "1h"},
		{"bad api url", "WIKI_API", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			t.Setenv(tt.env, tt.val)

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfiguration))
		})
	}
}

func TestValidate_MaxDepth(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	cfg.Search.MaxDepth = 11
	err = cfg.Validate()
	require.Error(t, err)

	var cerr *types.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Field, "MaxDepth")
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "linkpath.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  max_depth: 6\ncache:\n  backend: badger\n  neighbors_ttl: 5m\n"), 0644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Search.MaxDepth)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.NeighborsTTL)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LINKPATH_TEST_VALUE=from-dotenv\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("LINKPATH_TEST_VALUE")
	})

	require.NoError(t, LoadEnv())
	assert.Equal(t, "from-dotenv", os.Getenv("LINKPATH_TEST_VALUE"))
}
