// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies the relay to the upstream API.
func UserAgent() string {
	return fmt.Sprintf("bridge/%s (%s)", Version, shortSha())
}

func shortSha() string {
	if len(Sha) > 7 {
		return Sha[:7]
	}
	return Sha
}
