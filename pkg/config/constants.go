package config

const (
	UserConfigDirectoryNotFoundErrorMessage = "user config directory not found"
	FSMinerConfigDirectory                  = "fsminer"
	FSMinerConfigFile                       = "options.yaml"
)
