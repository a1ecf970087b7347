package activity

import "strings"

// ///////////////////////////////////////////////
// Lookup Tables
// ///////////////////////////////////////////////

// CrucibleBanner is the pgcrImage shared by every Crucible playlist. Crucible
// modes are matched on it because their names vary per playlist.
const CrucibleBanner = "/img/theme/destiny/bgs/stats/banner_crucible_1.jpg"

// locations maps free-roam activity names to a "Planet: Zone" label.
var locations = map[string]string{
	"Landing Zone":             "Mercury: Fields of Glass",
	"Io":                       "Io: Echo Mesa",
	"Hellas Basin":             "Mars: Hellas Basin",
	"Titan":                    "Titan: New Pacific Arcology",
	"Nessus, Unstable Centaur": "Nessus: Arcadian Valley",
	"Moon":                     "Moon",
	"The Dreaming City":        "The Dreaming City",
	"The Tangled Shore":        "The Tangled Shore",
}

// dungeons are reported upstream under the Story mode.
var dungeons = map[string]bool{
	"The Shattered Throne": true,
	"Pit of Heresy":        true,
}

var gambitModes = map[string]bool{
	"Gambit":        true,
	"Gambit Prime":  true,
	"The Reckoning": true,
}

// ///////////////////////////////////////////////
// Rules
// ///////////////////////////////////////////////

// rule is one row of the classification table. Rules are mutually exclusive
// in effect because only the first match is applied.
type rule struct {
	name  string
	match func(a *Activity, m *Mode) bool
	view  func(a *Activity, m *Mode) View
}

func modeIs(name string) func(*Activity, *Mode) bool {
	return func(_ *Activity, m *Mode) bool { return m.Name == name }
}

// rules is evaluated top to bottom by [Classify].
var rules = []rule{
	{
		name:  "explore/location",
		match: func(a *Activity, m *Mode) bool { return m.Name == "Explore" && locations[a.Name] != "" },
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: locations[a.Name], Subtitle: "Exploring:", Icon: IconExploring}
		},
	},
	{
		name:  "explore/tribute-hall",
		match: func(a *Activity, m *Mode) bool { return m.Name == "Explore" && a.Name == "The Tribute Hall" },
		view: func(*Activity, *Mode) View {
			return View{Subtitle: "In the Tribute Hall", Icon: IconExploring}
		},
	},
	{
		name:  "explore/adventure",
		match: modeIs("Explore"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Adventure", Icon: IconExploring}
		},
	},
	{
		name:  "story/dungeon",
		match: func(a *Activity, m *Mode) bool { return m.Name == "Story" && dungeons[a.Name] },
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Dungeon", Icon: IconDungeon}
		},
	},
	{
		name:  "story",
		match: modeIs("Story"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Story", Icon: IconStory}
		},
	},
	{
		// Vanguard strikes have always shown the Gambit artwork.
		name:  "strike",
		match: modeIs("Normal Strikes"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Vanguard Strike", Icon: IconGambit}
		},
	},
	{
		name: "nightfall/ordeal",
		match: func(a *Activity, m *Mode) bool {
			return m.Name == "Scored Nightfall Strikes" && strings.Contains(a.Name, "The Ordeal")
		},
		view: func(a *Activity, _ *Mode) View {
			strike := strings.TrimPrefix(a.Name, "Nightfall: The Ordeal: ")
			return View{Headline: a.Description + " - " + strike, Subtitle: "Nightfall: The Ordeal", Icon: IconNightfall}
		},
	},
	{
		name:  "nightfall",
		match: modeIs("Scored Nightfall Strikes"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: strings.TrimPrefix(a.Name, "Nightfall: "), Subtitle: "Playing: Nightfall Strike", Icon: IconNightfall}
		},
	},
	{
		name:  "gambit",
		match: func(_ *Activity, m *Mode) bool { return gambitModes[m.Name] },
		view: func(a *Activity, m *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: " + m.Name, Icon: IconGambit}
		},
	},
	{
		name: "crucible/iron-banner",
		match: func(_ *Activity, m *Mode) bool {
			return m.Banner == CrucibleBanner && strings.Contains(m.Name, "Iron Banner")
		},
		view: func(a *Activity, m *Mode) View {
			return View{
				Headline: a.Name,
				Subtitle: "Playing Iron Banner: " + strings.TrimPrefix(m.Name, "Iron Banner "),
				Icon:     IconIronBanner,
			}
		},
	},
	{
		name:  "crucible",
		match: func(_ *Activity, m *Mode) bool { return m.Banner == CrucibleBanner },
		view: func(a *Activity, m *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing Crucible: " + m.Name, Icon: IconCrucible}
		},
	},
	{
		name:  "menagerie",
		match: modeIs("The Menagerie"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: strings.TrimPrefix(a.Name, "The Menagerie: "), Subtitle: "Playing: Menagerie", Icon: IconMenagerie}
		},
	},
	{
		name:  "raid",
		match: modeIs("Raid"),
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Raid", Icon: IconRaid}
		},
	},
	{
		name: "activity/nightmare-hunt",
		match: func(a *Activity, m *Mode) bool {
			return m.Name == ModeGeneric && strings.HasPrefix(a.Name, "Nightmare Hunt:")
		},
		view: func(a *Activity, _ *Mode) View {
			hunt := strings.TrimPrefix(strings.TrimPrefix(a.Name, "Nightmare Hunt:"), " ")
			return View{Headline: hunt, Subtitle: "Playing: Nightmare Hunt", Icon: IconNightmare}
		},
	},
	{
		name:  "activity/vex-offensive",
		match: func(a *Activity, m *Mode) bool { return m.Name == ModeGeneric && a.Name == "Vex Offensive" },
		view: func(a *Activity, _ *Mode) View {
			return View{Headline: a.Name, Subtitle: "Playing: Vex Offensive", Icon: IconVexOffensive}
		},
	},
	{
		name:  "tower",
		match: modeIs("Social"),
		view: func(*Activity, *Mode) View {
			return View{Subtitle: "In the Tower", Icon: IconTower}
		},
	},
	{
		name:  "orbit",
		match: modeIs(ModeOrbit),
		view: func(*Activity, *Mode) View {
			return View{Subtitle: "In Orbit", Icon: IconIdle}
		},
	},
}

// fallback renders modes no rule recognises: the mode name passes through and
// the neutral icon is used.
func fallback(a *Activity, m *Mode) View {
	return View{Headline: a.Name, Subtitle: "Playing: " + m.Name, Icon: IconIdle}
}

// ///////////////////////////////////////////////
// Classify
// ///////////////////////////////////////////////

// Classify maps an activity and its mode to a [View]. If either is nil the
// player has no active session and [IdleView] is returned.
func Classify(a *Activity, m *Mode) View {
	v, _ := classify(a, m)
	return v
}

// Rule returns the name of the rule that classifies a and m: "idle" for a
// missing session and "fallback" when no rule matches. Used for logging.
func Rule(a *Activity, m *Mode) string {
	_, name := classify(a, m)
	return name
}

func classify(a *Activity, m *Mode) (View, string) {
	if a == nil || m == nil {
		return IdleView(), "idle"
	}
	for _, r := range rules {
		if r.match(a, m) {
			return r.view(a, m), r.name
		}
	}
	return fallback(a, m), "fallback"
}

// ClassifySession is [Classify] for a fetched session; nil means idle.
func ClassifySession(s *Session) View {
	v, _ := ClassifySessionRule(s)
	return v
}

// ClassifySessionRule is [ClassifySession] that also returns the name of the
// matching rule, as [Rule] would.
func ClassifySessionRule(s *Session) (View, string) {
	if s == nil {
		return IdleView(), "idle"
	}
	return classify(s.Activity, s.Mode)
}
