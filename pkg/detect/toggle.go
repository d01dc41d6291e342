package detect

import "os"

// NEREnabled reports whether local NER detection should be enabled.
// Default is disabled; set AEGIS_ENABLE_NER=true (or HUGOT_ENABLED=true)
// to opt-in. This keeps installs quiet unless a model is provisioned.
func NEREnabled() bool {
	if isTrue(os.Getenv("AEGIS_ENABLE_NER")) {
		return true
	}
	if isTrue(os.Getenv("HUGOT_ENABLED")) {
		return true
	}
	return false
}

func isTrue(v string) bool {
	switch v {
	case "1", "true", "TRUE", "yes", "YES", "on", "ON":
		return true
	default:
		return false
	}
}
