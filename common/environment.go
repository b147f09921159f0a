package common

import "os"

// EnvironmentVariable names a process environment variable that can override
// a default value. Only LogLocation and StateLocation are read by odinctl
// (at folder initialization); ConfigFile and ChunkSizeBytes are declared
// but not read anywhere.
type EnvironmentVariable struct {
	Name         string
	DefaultValue string
	Description  string
}

var EEnvironmentVariable = EnvironmentVariable{}

func (EnvironmentVariable) LogLocation() EnvironmentVariable {
	return EnvironmentVariable{Name: "ODIN_LOG_LOCATION", Description: "folder odinctl writes session logs to"}
}

func (EnvironmentVariable) StateLocation() EnvironmentVariable {
	return EnvironmentVariable{Name: "ODIN_STATE_LOCATION", Description: "state folder odinctl creates at startup"}
}

func (EnvironmentVariable) ConfigFile() EnvironmentVariable {
	return EnvironmentVariable{Name: "ODIN_CONFIG_FILE", Description: "path to a TOML config file overriding defaults"}
}

func (EnvironmentVariable) ChunkSizeBytes() EnvironmentVariable {
	return EnvironmentVariable{Name: "ODIN_CHUNK_SIZE_BYTES", Description: "override the default pipeline chunk size"}
}

// GetEnvironmentVariable reads the named variable, falling back to its
// declared default when unset.
func GetEnvironmentVariable(v EnvironmentVariable) string {
	if val, ok := os.LookupEnv(v.Name); ok {
		return val
	}
	return v.DefaultValue
}
