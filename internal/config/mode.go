package config

// Mode is the deployment environment the process runs in. It is fixed at
// startup and decides which middleware the pipeline includes.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTest        Mode = "test"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDevelopment, ModeProduction, ModeTest:
		return true
	}
	return false
}

// Logging reports whether request and error logging is active.
func (m Mode) Logging() bool {
	return m != ModeTest
}

// EnforceHTTPS reports whether plain-HTTP requests are redirected.
func (m Mode) EnforceHTTPS() bool {
	return m == ModeProduction
}
