package config_test

import (
	"fmt"
	"testing"

	"github.com/atomicobject/fsminer/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigCliPath(t *testing.T) {
	originalUserConfigDirectory := config.UserConfigDirectory
	defer func() { config.UserConfigDirectory = originalUserConfigDirectory }()

	t.Run("userConfigDirectory func returns a directory", func(t *testing.T) {
		config.UserConfigDirectory = func() (string, error) {
			return "user/config/dir", nil
		}
		cliConfigDir, cliConfigFile, err := config.CliPath()
		assert.Equal(t, nil, err)
		assert.Equal(t, "user/config/dir/fsminer", cliConfigDir)
		assert.Equal(t, "user/config/dir/fsminer/options.yaml", cliConfigFile)
	})

	t.Run("userConfigDirectory func returns an error", func(t *testing.T) {
		config.UserConfigDirectory = func() (string, error) {
			return "", fmt.Errorf("user config directory not found")
		}
		cliConfigDir, cliConfigFile, err := config.CliPath()
		assert.Equal(t, "user config directory not found", err.Error())
		assert.Equal(t, "", cliConfigDir)
		assert.Equal(t, "", cliConfigFile)
	})
}
