package simulator

import (
	"sort"

	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/simerr"
)

// groundAliases mirrors the ground spellings spec §6 names ("0", "gnd",
// "GND"); duplicated here rather than exported from pkg/mna since the
// validator only needs membership, not the assembler's resolved index.
var groundAliases = map[string]bool{"0": true, "gnd": true, "GND": true}

// collectAdvisories implements spec §7 kind 5 (numerical advisory):
// floating nodes (exactly one connection) and a missing ground
// reference, both non-fatal and reported alongside a successful
// validation rather than aborting it.
func collectAdvisories(asm *mna.Assembler) []simerr.Advisory {
	connections := make(map[string]int)
	groundSeen := false

	for _, d := range asm.Devices() {
		for _, n := range d.TerminalNames() {
			if groundAliases[n] {
				groundSeen = true
				continue
			}
			connections[n]++
		}
	}

	names := make([]string, 0, len(connections))
	for n := range connections {
		names = append(names, n)
	}
	sort.Strings(names)

	var advisories []simerr.Advisory
	if !groundSeen {
		advisories = append(advisories, simerr.Warnf("circuit has no ground (\"0\"/\"gnd\"/\"GND\") reference"))
	}
	for _, n := range names {
		if connections[n] == 1 {
			advisories = append(advisories, simerr.Warnf("node %q has only one connection (floating)", n))
		}
	}
	return advisories
}
