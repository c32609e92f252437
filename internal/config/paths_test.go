package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDir_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, DefaultConfigDir())
}

func TestDefaultConfigPath_EndsInConfigFileName(t *testing.T) {
	path := DefaultConfigPath()
	assert.Contains(t, path, configFileName)
}

func TestDefaultDataDir_DistinctFromCacheDir(t *testing.T) {
	assert.NotEqual(t, DefaultDataDir(), DefaultCacheDir())
}
