package galaxy

import (
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
)

// MergeClusterElements folds an actor's classification data into its galaxy
// cluster. Idempotent: elements already present are left alone. Returns the
// number of elements added.
func MergeClusterElements(actor *intel.ActorRecord, detail intel.DetailRecord, cluster *misp.GalaxyCluster) int {
	added := 0

	if detail.ActorType != "" {
		if cluster.AddElement("actor-type", detail.ActorType) {
			added++
		}
	}

	for _, motive := range detail.Motivations {
		if cluster.AddElement("motivation", motive.Value) {
			added++
		}
	}

	if detail.Capability != nil && detail.Capability.Value != "" {
		if cluster.AddElement("capability", detail.Capability.Value) {
			added++
		}
	}

	if actor != nil {
		for _, origin := range actor.Origins {
			if cluster.AddElement("country-of-origin", origin.Value) {
				added++
			}
		}
	}

	return added
}
