// Package dispatch implements the command dispatcher (spec §4.3, C3):
// parsing the colon-delimited command string once at ingress, routing to
// per-verb handlers, emitting acks, and recovering handler faults at the
// dispatcher boundary so they never reach the session loop.
package dispatch

import "strings"

// ParsedCommand is the typed result of parsing a command string once at
// ingress (spec §9: "Do not pass raw colon-split substrings through the
// core; parse once at ingress"). Verb is the dispatch key ("refresh",
// "apt:get_repos", "interactive:start", ...); Args is everything after the
// verb, left for the specific handler to parse with its own bounded split
// — most verbs have a different argument shape, so a single generic
// split count cannot serve all of them.
type ParsedCommand struct {
	Verb string
	Args string
}

// familyVerbs are the two-level verb prefixes (spec §4.3.1's apt:* and
// interactive:* rows): the dispatch key is "<family>:<sub>", not just the
// first colon-delimited token.
var familyVerbs = map[string]bool{
	"apt":         true,
	"interactive": true,
}

// ParseCommand splits a raw command string (spec §4.3's command envelope
// "verb[:arg[:arg...]]") into a verb and an unparsed argument remainder.
func ParseCommand(raw string) ParsedCommand {
	first, rest := splitOnce(raw)
	if familyVerbs[first] {
		sub, rest2 := splitOnce(rest)
		return ParsedCommand{Verb: first + ":" + sub, Args: rest2}
	}
	return ParsedCommand{Verb: first, Args: rest}
}

// splitOnce splits on the first colon. When no colon is present it returns
// the whole string as head and an empty rest.
func splitOnce(s string) (head, rest string) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// isAllDigits reports whether s is a non-empty run of ASCII digits, used
// by the download_file_chunked tie-break (spec §4.3.1).
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
