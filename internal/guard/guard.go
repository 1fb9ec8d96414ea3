// ABOUTME: Command safety guard that blocks shell commands matching a denylist.
// ABOUTME: Matching is case-insensitive substring search; first match wins.

package guard

import (
	"fmt"
	"strings"
)

// BlockedExitCode is the reserved status reported for a command the guard
// refused to run. Callers must treat it as non-retryable.
const BlockedExitCode = 126

// DefaultPatterns is the built-in denylist, in match order.
var DefaultPatterns = []string{
	"rm -rf", "rm -r /", "rm -rf /",
	"shutdown", "reboot", "poweroff", "halt",
	"mkfs", "dd ", ":(){:|:&}", ">:(",
	"kill 1", "kill -9 1", "killall",
	"init 0", "init 6", "systemctl",
	"chown /", "chmod 000 /", "mv /", "cp /dev/zero",
	">/dev/vda", ">/dev/hda", ">/dev/nvme", ">/dev/xvda", ">/dev/mmcblk",
	"docker stop", "docker kill", "docker rm", "docker rmi", "docker system prune",
	"docker-compose down", "docker-compose rm", "docker-compose stop", "docker-compose kill",
	"crontab -r",
	"userdel", "groupdel", "passwd", "su ", "sudo ", "visudo",
	"adduser", "addgroup", "deluser", "delgroup",
	"pkill", "init ",
}

func init() {
	// Raw writes to every SCSI disk letter.
	for c := 'a'; c <= 'z'; c++ {
		DefaultPatterns = append(DefaultPatterns, fmt.Sprintf(">/dev/sd%c", c))
	}
}

// Verdict is the outcome of classifying one command.
type Verdict struct {
	Allowed bool
	Pattern string
}

// Guard holds an immutable, lower-cased pattern set.
type Guard struct {
	patterns []string
}

// New returns a guard over DefaultPatterns plus any extra patterns.
// Empty and duplicate patterns are dropped.
func New(extra ...string) *Guard {
	seen := make(map[string]bool)
	var patterns []string
	for _, p := range append(append([]string{}, DefaultPatterns...), extra...) {
		lp := strings.ToLower(p)
		if lp == "" || seen[lp] {
			continue
		}
		seen[lp] = true
		patterns = append(patterns, lp)
	}
	return &Guard{patterns: patterns}
}

// Classify reports whether cmd may be executed.
func (g *Guard) Classify(cmd string) Verdict {
	lower := strings.ToLower(cmd)
	for _, p := range g.patterns {
		if strings.Contains(lower, p) {
			return Verdict{Allowed: false, Pattern: p}
		}
	}
	return Verdict{Allowed: true}
}

// Patterns returns a copy of the active pattern set.
func (g *Guard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}
