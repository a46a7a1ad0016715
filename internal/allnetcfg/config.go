// Package allnetcfg holds the daemon-wide configuration every AllNet
// component reads at startup: the on-disk home directory, default key
// sizes, beacon/cycle timing knobs, and the priority boundary abcqueue
// and abc use to classify traffic.
//
// Grounded on stlalpha-vision3/internal/config's JSON-backed struct +
// os.ReadFile idiom (LoadServerConfig in particular), generalized from
// a BBS server.json to AllNet's own knobs.
package allnetcfg

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// Config is the daemon-wide AllNet configuration, loaded from
// <HomeDir>/acfg.json.
type Config struct {
	// HomeDir is the ~/.allnet-equivalent root every other package's
	// on-disk state (keystore, spare keys, broadcast keys) nests
	// under. Empty means "caller's default" (os.UserHomeDir()+"/.allnet").
	HomeDir string `json:"homeDir,omitempty"`

	// DefaultKeyBits sizes RSA keys CreateContact/CreateSpareKey
	// generate when no explicit size is given (keyd.c's KEY_GEN_BITS).
	DefaultKeyBits int `json:"defaultKeyBits"`

	// CycleDurationMs is one abc managed-channel cycle's length, in
	// milliseconds (§4.8); BeaconDurationMs is the sub-interval within
	// each cycle reserved for the beacon handshake.
	CycleDurationMs      int64  `json:"cycleDurationMs"`
	BeaconDurationMs     int64  `json:"beaconDurationMs"`
	DefaultBitsPerSecond uint64 `json:"defaultBitsPerSecond"`

	// FriendsPriorityBoundary is the low/high priority split §3
	// describes (wire.PriorityFriendsLow by default, overridable so a
	// deployment can widen or narrow which traffic counts as "trusted").
	FriendsPriorityBoundary wire.Priority `json:"friendsPriorityBoundary"`

	// Interfaces lists the OS network interface names abc should open
	// managed or unmanaged broadcast channels on (§6; interface glue
	// itself is out of scope per spec.md's Non-goals, but the
	// configured name list is ambient config regardless).
	Interfaces []InterfaceConfig `json:"interfaces"`
}

// InterfaceConfig names one broadcast interface and whether abc should
// treat it as a managed (shared-medium, beaconed) or unmanaged
// (point-to-point/IP broadcast) channel.
type InterfaceConfig struct {
	Name    string `json:"name"`
	Managed bool   `json:"managed"`
}

const configFileName = "acfg.json"

func defaultConfig() Config {
	return Config{
		DefaultKeyBits:          4096,
		CycleDurationMs:         (5 * time.Second).Milliseconds(),
		BeaconDurationMs:        (50 * time.Millisecond).Milliseconds(),
		DefaultBitsPerSecond:    1000 * 1000,
		FriendsPriorityBoundary: wire.PriorityFriendsLow,
	}
}

// CycleDuration returns CycleDurationMs as a time.Duration.
func (c Config) CycleDuration() time.Duration {
	return time.Duration(c.CycleDurationMs) * time.Millisecond
}

// BeaconDuration returns BeaconDurationMs as a time.Duration.
func (c Config) BeaconDuration() time.Duration {
	return time.Duration(c.BeaconDurationMs) * time.Millisecond
}

// Load reads <dir>/acfg.json, returning defaultConfig() (not an error)
// if the file does not exist yet, mirroring LoadServerConfig's
// missing-file handling.
func Load(dir string) (Config, error) {
	path := filepath.Join(dir, configFileName)
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: %s not found, using default AllNet configuration", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("allnetcfg: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("allnetcfg: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to <dir>/acfg.json.
func Save(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("allnetcfg: creating %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("allnetcfg: marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0600)
}
