package callmanager

import "strings"

// resolveDestination maps a dialed digit buffer to a signalling
// destination. Speed-dial is checked first on an exact match; otherwise
// the buffer must match an allow-list entry (a literal "*" permits any
// destination) to be permitted, comparing both sides with a leading "+"
// trimmed so a dialed digit string matches an E.164-style allow-list
// entry.
func resolveDestination(buffer string, speedDial map[string]string, allowList []string) (destination, speedDialCode string, permitted bool) {
	if dest, ok := speedDial[buffer]; ok {
		return dest, buffer, true
	}

	trimmedBuffer := strings.TrimPrefix(buffer, "+")
	for _, entry := range allowList {
		if entry == "*" {
			return buffer, "", true
		}
		if strings.TrimPrefix(entry, "+") == trimmedBuffer {
			return buffer, "", true
		}
	}

	return "", "", false
}

// isCallerAllowed reports whether callerID matches an allow-list entry,
// using the same "*" wildcard and leading-"+" trimming resolveDestination
// applies to outbound destinations.
func isCallerAllowed(callerID string, allowList []string) bool {
	trimmedCaller := strings.TrimPrefix(callerID, "+")
	for _, entry := range allowList {
		if entry == "*" {
			return true
		}
		if strings.TrimPrefix(entry, "+") == trimmedCaller {
			return true
		}
	}
	return false
}
