package bungie

import "strings"

// Platform is a Bungie membership type used to scope player searches.
type Platform int

const (
	PlatformAll   Platform = -1
	PlatformPS4   Platform = 1
	PlatformXBox  Platform = 2
	PlatformSteam Platform = 3
)

// platformNames maps config spellings (lowercased) to platforms.
var platformNames = map[string]Platform{
	"all":   PlatformAll,
	"ps4":   PlatformPS4,
	"xbox":  PlatformXBox,
	"steam": PlatformSteam,
}

// ParsePlatform converts a platform name such as "Steam" or "ps4" into a
// [Platform]. Unknown names map to [PlatformAll].
func ParsePlatform(s string) Platform {
	if p, ok := LookupPlatform(s); ok {
		return p
	}
	return PlatformAll
}

// LookupPlatform is like [ParsePlatform] but reports whether s was recognised.
func LookupPlatform(s string) (Platform, bool) {
	p, ok := platformNames[strings.ToLower(strings.TrimSpace(s))]
	return p, ok
}

// String returns the canonical config spelling.
func (p Platform) String() string {
	switch p {
	case PlatformPS4:
		return "PS4"
	case PlatformXBox:
		return "XBox"
	case PlatformSteam:
		return "Steam"
	default:
		return "All"
	}
}

// Player identifies whose activity to look up.
type Player struct {
	// Name is a display name or a Bungie name ("Guardian#1234").
	Name     string
	Platform Platform
}
