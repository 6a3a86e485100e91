package consolidate

import (
	"fmt"
	"strings"

	"github.com/lotas/mergewin/internal/analyzer"
)

// Ordering controls which tabs count as the "first occurrence" of an address.
type Ordering int

const (
	// MainWindowFirst walks the main window's tabs before all others.
	MainWindowFirst Ordering = iota
	// NaturalOrder walks windows in enumeration order.
	NaturalOrder
)

// Config is the immutable input that selects the classification rules.
// Build it with Preset; the zero value dismisses nothing.
type Config struct {
	Name string

	// CleanSingleWindow keeps classifying when only one window is open
	// instead of reporting that there is nothing to merge.
	CleanSingleWindow bool
	Ordering          Ordering

	Dismiss    analyzer.DomainSet
	StalePorts analyzer.PortRules
}

// Compiled-in domain lists. Not configurable at runtime.
var (
	socialDomains = []string{
		"youtube.com",
		"youtu.be",
		"twitter.com",
		"x.com",
		"facebook.com",
		"instagram.com",
		"tiktok.com",
		"reddit.com",
		"linkedin.com",
		"pinterest.com",
		"snapchat.com",
	}

	noiseDomains = []string{
		"threads.net",
		"bsky.app",
		"tumblr.com",
		"twitch.tv",
		"9gag.com",
		"quora.com",
	}

	stalePortPatterns = []string{
		"{localhost,127.0.0.1}:3000",
	}
)

const (
	PresetClassic  = "classic"
	PresetExtended = "extended"
)

// Presets lists the known preset names.
func Presets() []string {
	return []string{PresetClassic, PresetExtended}
}

// Preset returns the named configuration. "classic" stops early on a single
// window and prefers the main window for first occurrences; "extended" cleans
// single windows, walks windows in natural order, closes tabs on the stale
// local port and dismisses a longer domain list.
func Preset(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetClassic:
		return Config{
			Name:     PresetClassic,
			Ordering: MainWindowFirst,
			Dismiss:  analyzer.NewDomainSet(socialDomains...),
		}, nil
	case PresetExtended:
		all := append(append([]string(nil), socialDomains...), noiseDomains...)
		return Config{
			Name:              PresetExtended,
			CleanSingleWindow: true,
			Ordering:          NaturalOrder,
			Dismiss:           analyzer.NewDomainSet(all...),
			StalePorts:        analyzer.MustPortRules(stalePortPatterns...),
		}, nil
	default:
		return Config{}, fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(Presets(), ", "))
	}
}

// DefaultConfig is the classic preset.
func DefaultConfig() Config {
	cfg, _ := Preset(PresetClassic)
	return cfg
}
