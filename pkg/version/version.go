// Package version holds build-time version info injected via ldflags.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/NicolasHaas/gochat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/gochat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/gochat/pkg/version.date=2026-01-01"
package version

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the short version used in logs and the build_info metric:
// the tag, else the commit, else "dev".
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns the -version banner, e.g. "gochat v0.2.0 (abc1234) built 2026-01-01".
func Full() string {
	switch {
	case tag != "":
		return "gochat " + tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return "gochat " + commit + " built " + date
	default:
		return "gochat dev"
	}
}
