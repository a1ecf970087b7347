// Package activity classifies Destiny 2 activity and mode definitions into the
// two-line presence shown on Discord.
//
// The package is pure: [Classify] performs no I/O, holds no state between
// calls, and is safe to call from any goroutine. Upstream lookups, sentinels
// for data gaps, and rendering all live in the packages around it.
package activity

import "time"

// ///////////////////////////////////////////////
// Icons
// ///////////////////////////////////////////////

// Icon identifies the artwork category for a presence. The set is closed;
// the presence package maps each key to a Discord asset.
type Icon string

const (
	IconIdle         Icon = "idle"
	IconExploring    Icon = "exploring"
	IconStory        Icon = "story"
	IconNightfall    Icon = "nightfall"
	IconGambit       Icon = "gambit"
	IconCrucible     Icon = "crucible"
	IconIronBanner   Icon = "iron_banner"
	IconRaid         Icon = "raid"
	IconMenagerie    Icon = "menagerie"
	IconNightmare    Icon = "nightmare_hunt"
	IconVexOffensive Icon = "vex_offensive"
	IconTower        Icon = "tower"
	IconDungeon      Icon = "dungeon"
)

// Icons lists every icon key in a stable order.
var Icons = []Icon{
	IconIdle, IconExploring, IconStory, IconNightfall, IconGambit,
	IconCrucible, IconIronBanner, IconRaid, IconMenagerie, IconNightmare,
	IconVexOffensive, IconTower, IconDungeon,
}

// Valid reports whether i is one of the known icon keys.
func (i Icon) Valid() bool {
	for _, k := range Icons {
		if i == k {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Descriptors
// ///////////////////////////////////////////////

// Activity is the subset of a DestinyActivityDefinition the classifier reads.
type Activity struct {
	Hash        uint32
	Name        string
	Description string
}

// Mode is the subset of a DestinyActivityModeDefinition the classifier reads.
// Banner holds the mode's pgcrImage path, which a few categories can only be
// told apart by.
type Mode struct {
	Hash        uint32
	Name        string
	Banner      string
	Description string
}

// Mode names with special meaning to the fetcher.
const (
	ModeOrbit   = "Orbit"
	ModeGeneric = "Activity"
)

// OrbitMode is the synthetic mode used when upstream reports an activity with
// no display name, which happens while a player sits in orbit.
func OrbitMode() *Mode {
	return &Mode{Name: ModeOrbit}
}

// GenericMode is the synthetic mode used when the real mode hash is zero or
// cannot be decoded.
func GenericMode() *Mode {
	return &Mode{Name: ModeGeneric}
}

// Session is one character's current activity as reported upstream.
type Session struct {
	Activity *Activity
	Mode     *Mode
	// Started is when the character entered the activity. Zero if unknown.
	Started time.Time
}

// ///////////////////////////////////////////////
// View
// ///////////////////////////////////////////////

// View is the classifier output. Empty strings mean the line is absent.
type View struct {
	// Headline is the specific activity or location (Discord "state").
	Headline string
	// Subtitle is the category line (Discord "details").
	Subtitle string
	Icon     Icon
}

// IdleView is the view for a player with no active session.
func IdleView() View {
	return View{Icon: IconIdle}
}

// Idle reports whether v represents no active session.
func (v View) Idle() bool {
	return v.Headline == "" && v.Subtitle == "" && v.Icon == IconIdle
}
