package config

import (
	"errors"
	"os"
	"path/filepath"
)

// UserConfigDirectory is a seam over os.UserConfigDir for tests.
var UserConfigDirectory = os.UserConfigDir

// CliPath resolves the directory and file holding the persisted option
// file (§6), the way the teacher resolves its own preferences file.
func CliPath() (cliConfigDir string, cliConfigFile string, err error) {
	userConfigDir, err := UserConfigDirectory()
	if err != nil {
		return "", "", errors.New(UserConfigDirectoryNotFoundErrorMessage)
	}
	cliConfigDir = filepath.Join(userConfigDir, FSMinerConfigDirectory)
	cliConfigFile = filepath.Join(cliConfigDir, FSMinerConfigFile)
	return cliConfigDir, cliConfigFile, nil
}
