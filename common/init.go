package common

import (
	"log"
	"os"
	"path"
)

var StateFolder string
var LogPathFolder string

// InitializeFolders ensures the session-state and log folders exist, creating
// the default ~/.odin tree on first run.
func InitializeFolders() {
	LogPathFolder = GetEnvironmentVariable(EEnvironmentVariable.LogLocation())
	StateFolder = GetEnvironmentVariable(EEnvironmentVariable.StateLocation())

	odinAppPathFolder := getOdinAppPath()

	if LogPathFolder == "" {
		LogPathFolder = odinAppPathFolder
	}
	if err := os.MkdirAll(LogPathFolder, os.ModeDir|os.ModePerm); err != nil && !os.IsExist(err) {
		log.Fatalf("problem making .odin log directory, try setting ODIN_LOG_LOCATION: %v", err)
	}

	if StateFolder == "" {
		if err := os.MkdirAll(odinAppPathFolder, os.ModeDir); err != nil && !os.IsExist(err) {
			log.Fatalf("problem making .odin directory, try setting ODIN_STATE_LOCATION: %v", err)
		}
		StateFolder = path.Join(odinAppPathFolder, "state")
	}

	if err := os.MkdirAll(StateFolder, os.ModeDir|os.ModePerm); err != nil && !os.IsExist(err) {
		log.Fatalf("problem making .odin state directory, try setting ODIN_STATE_LOCATION: %v", err)
	}
}

func getOdinAppPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return path.Join(home, ".odin")
}
