// Package version holds the closed set of Bedrock protocol revisions the
// client knows how to speak.
package version

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"golang.org/x/mod/semver"
)

// Version is a single protocol revision. The zero Version is invalid.
type Version struct {
	name     string
	protocol int32
	raknet   int
	family   int32
}

var (
	V1_13_0   = Version{name: "1.13.0", protocol: 388, raknet: 9, family: 388}
	V1_14_0   = Version{name: "1.14.0", protocol: 389, raknet: 9, family: 388}
	V1_14_60  = Version{name: "1.14.60", protocol: 390, raknet: 9, family: 388}
	V1_16_0   = Version{name: "1.16.0", protocol: 407, raknet: 10, family: 407}
	V1_16_20  = Version{name: "1.16.20", protocol: 408, raknet: 10, family: 407}
	V1_16_100 = Version{name: "1.16.100", protocol: 419, raknet: 10, family: 419}
	V1_16_200 = Version{name: "1.16.200", protocol: 422, raknet: 10, family: 419}
	V1_16_210 = Version{name: "1.16.210", protocol: 428, raknet: 10, family: 428}
	V1_16_220 = Version{name: "1.16.220", protocol: 431, raknet: 10, family: 428}
	V1_17_0   = Version{name: "1.17.0", protocol: 440, raknet: 10, family: 440}
	V1_17_10  = Version{name: "1.17.10", protocol: 448, raknet: 10, family: 448}
	V1_17_30  = Version{name: "1.17.30", protocol: 465, raknet: 10, family: 465}
	V1_17_40  = Version{name: "1.17.40", protocol: 471, raknet: 10, family: 471}
	V1_18_0   = Version{name: "1.18.0", protocol: 475, raknet: 10, family: 475}
	V1_18_10  = Version{name: "1.18.10", protocol: 486, raknet: 10, family: 486}
	V1_18_30  = Version{name: "1.18.30", protocol: 503, raknet: 10, family: 503}
	V1_19_0   = Version{name: "1.19.0", protocol: 527, raknet: 10, family: 527}
	V1_19_10  = Version{name: "1.19.10", protocol: 534, raknet: 10, family: 527}

	// Latest is the revision implemented by the linked gophertunnel release.
	// It is the only revision the default transport can dial without an
	// additional minecraft.Protocol registered for it.
	Latest = Version{name: protocol.CurrentVersion, protocol: int32(protocol.CurrentProtocol), raknet: 11, family: int32(protocol.CurrentProtocol)}
)

var all = []Version{
	V1_13_0, V1_14_0, V1_14_60,
	V1_16_0, V1_16_20, V1_16_100, V1_16_200, V1_16_210, V1_16_220,
	V1_17_0, V1_17_10, V1_17_30, V1_17_40,
	V1_18_0, V1_18_10, V1_18_30,
	V1_19_0, V1_19_10,
	Latest,
}

// All returns every known Version ordered by protocol number.
func All() []Version {
	return slices.Clone(all)
}

// Protocol returns the numeric protocol ID sent in the login packet.
func (v Version) Protocol() int32 { return v.protocol }

// RakNet returns the RakNet protocol version the transport handshake uses.
func (v Version) RakNet() int { return v.raknet }

// Name returns the game version string, such as "1.18.10".
func (v Version) Name() string { return v.name }

// Valid reports if v is one of the known revisions.
func (v Version) Valid() bool { return v.protocol != 0 }

// Before reports if v is older than o.
func (v Version) Before(o Version) bool { return v.protocol < o.protocol }

// AtLeast reports if v is o or newer than o.
func (v Version) AtLeast(o Version) bool { return v.protocol >= o.protocol }

// Family returns the oldest revision sharing the block palette of v. All
// revisions of one family use an identical runtime ID table.
func (v Version) Family() Version {
	f, _ := ByProtocol(v.family)
	return f
}

// LegacyPalette reports if the revision maps runtime IDs onto legacy block
// ID and metadata pairs instead of hashed block state tables.
func (v Version) LegacyPalette() bool {
	return v.Valid() && v.Before(V1_16_0)
}

// String returns the game version followed by its protocol number.
func (v Version) String() string {
	if !v.Valid() {
		return "unknown"
	}
	return fmt.Sprintf("%v (%v)", v.name, v.protocol)
}

// ByProtocol looks up the Version with the exact protocol number passed.
func ByProtocol(id int32) (Version, bool) {
	i, ok := slices.BinarySearchFunc(all, id, func(v Version, id int32) int {
		return int(v.protocol) - int(id)
	})
	if !ok {
		return Version{}, false
	}
	return all[i], true
}

// ByName looks up a Version by game version. "1.18" matches "1.18.0".
func ByName(name string) (Version, bool) {
	want := canonical(name)
	if !semver.IsValid(want) {
		return Version{}, false
	}
	for _, v := range all {
		if semver.Compare(canonical(v.name), want) == 0 {
			return v, true
		}
	}
	return Version{}, false
}

// Parse resolves either a protocol number ("475") or a game version
// ("1.18.0"). Unknown values are rejected rather than mapped onto the
// closest revision.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "latest") {
		return Latest, nil
	}
	if id, err := strconv.ParseInt(s, 10, 32); err == nil {
		if v, ok := ByProtocol(int32(id)); ok {
			return v, nil
		}
		return Version{}, fmt.Errorf("version: unknown protocol %v", id)
	}
	if v, ok := ByName(s); ok {
		return v, nil
	}
	return Version{}, fmt.Errorf("version: unknown game version %q", s)
}

func canonical(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "v")
	// Bedrock versions sometimes carry a fourth component, which semver
	// does not accept.
	if parts := strings.Split(name, "."); len(parts) > 3 {
		name = strings.Join(parts[:3], ".")
	}
	return "v" + name
}
