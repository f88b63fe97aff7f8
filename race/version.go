package race

// Version information for the race verification runtime.
const (
	// Version is the current version of the runtime.
	Version = "0.1.0"
)

// Info provides runtime information about the engine.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Analyzers names the detection algorithms compiled in.
	Analyzers []string

	// Verifier reports whether the active verifier is available.
	Verifier bool
}

// GetInfo returns information about the runtime build.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Analyzers: []string{"djit", "eraser", "race_track", "multilock_hb"},
		Verifier:  true,
	}
}
