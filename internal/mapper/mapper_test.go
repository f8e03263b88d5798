package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
)

var testOrg = misp.Organisation{ID: "1", UUID: "org-uuid", Name: "CrowdStrike"}

func newTestMapper(cfg Config, clusterMap map[string]*misp.ClusterRef) *Mapper {
	if cfg.UnknownRegion == "" {
		cfg.UnknownRegion = "UNIDENTIFIED"
	}
	return New(cfg, testOrg, clusterMap, logger.NopLogger())
}

func findObject(ev *misp.Event, name string) *misp.Object {
	for _, obj := range ev.Objects {
		if obj.Name == name {
			return obj
		}
	}
	return nil
}

func attrValue(obj *misp.Object, attrType string) string {
	for _, attr := range obj.Attributes {
		if attr.Type == attrType {
			return attr.Value
		}
	}
	return ""
}

func TestMapMissingNameFailsRecord(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	tests := []struct {
		name      string
		actorName string
	}{
		{name: "empty name", actorName: ""},
		{name: "whitespace only name", actorName: "   "},
		{name: "tab only name", actorName: "\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 42, Name: tt.actorName}, intel.DetailRecord{})
			require.Error(t, err)
			assert.Nil(t, ev)
		})
	}
}

func TestMapInfoString(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	tests := []struct {
		name  string
		actor intel.ActorRecord
		want  string
	}{
		{
			name:  "known branch gets region suffix",
			actor: intel.ActorRecord{ID: 811, Name: "FANCY BEAR"},
			want:  "ADV-811 FANCY BEAR (Russia)",
		},
		{
			name:  "unknown branch has no suffix",
			actor: intel.ActorRecord{ID: 4, Name: "STRANGE NARWHAL"},
			want:  "ADV-4 STRANGE NARWHAL",
		},
		{
			name:  "single token name",
			actor: intel.ActorRecord{ID: 9, Name: "OUTBREAK"},
			want:  "ADV-9 OUTBREAK",
		},
		{
			name:  "branch must match the whole token",
			actor: intel.ActorRecord{ID: 12, Name: "GOTHIC PANDAS"},
			want:  "ADV-12 GOTHIC PANDAS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := m.Map(context.Background(), tt.actor, intel.DetailRecord{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Info)
		})
	}
}

func TestMapClusterTag(t *testing.T) {
	clusterMap := map[string]*misp.ClusterRef{
		"FANCY BEAR": {TagName: `misp-galaxy:threat-actor="FANCY BEAR"`},
	}
	m := newTestMapper(Config{}, clusterMap)

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, intel.DetailRecord{})
	require.NoError(t, err)
	assert.True(t, ev.HasTag(`misp-galaxy:threat-actor="FANCY BEAR"`))

	// Unaligned actor gets the provisional tag instead.
	ev, err = m.Map(context.Background(), intel.ActorRecord{ID: 2, Name: "WICKED PANDA"}, intel.DetailRecord{})
	require.NoError(t, err)
	assert.True(t, ev.HasTag("CrowdStrike:adversary: WICKED PANDA"))
	assert.True(t, ev.HasTag("CrowdStrike:adversary:branch: PANDA"))
}

func TestMapThreatLevel(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	tests := []struct {
		name       string
		capability string
		want       int
	}{
		{name: "below average is low", capability: "Below Average", want: misp.ThreatLevelLow},
		{name: "low is low", capability: "LOW", want: misp.ThreatLevelLow},
		{name: "above average is high", capability: "Above Average", want: misp.ThreatLevelHigh},
		{name: "high is high", capability: "High", want: misp.ThreatLevelHigh},
		{name: "average is medium", capability: "Average", want: misp.ThreatLevelMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail := intel.DetailRecord{Capability: &intel.Entity{Value: tt.capability}}
			ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, detail)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.ThreatLevelID)
		})
	}

	t.Run("absent capability stays medium", func(t *testing.T) {
		ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, intel.DetailRecord{})
		require.NoError(t, err)
		assert.Equal(t, misp.ThreatLevelMedium, ev.ThreatLevelID)
	})
}

func TestMapTimestampReconciliation(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	actor := intel.ActorRecord{
		ID:                1,
		Name:              "FANCY BEAR",
		FirstActivityDate: 200,
		LastActivityDate:  100,
	}

	ev, err := m.Map(context.Background(), actor, intel.DetailRecord{})
	require.NoError(t, err)

	tsObj := findObject(ev, "timestamp")
	require.NotNil(t, tsObj)
	assert.Equal(t, "1970-01-01T00:01:40", attrValue(tsObj, "first-seen"), "reversed window must be swapped")
	assert.Equal(t, "1970-01-01T00:03:20", attrValue(tsObj, "last-seen"))
}

func TestMapTimestampFirstSeenFallsBackToLastSeen(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	actor := intel.ActorRecord{ID: 1, Name: "FANCY BEAR", LastActivityDate: 100}

	ev, err := m.Map(context.Background(), actor, intel.DetailRecord{})
	require.NoError(t, err)

	tsObj := findObject(ev, "timestamp")
	require.NotNil(t, tsObj)
	assert.Equal(t, attrValue(tsObj, "last-seen"), attrValue(tsObj, "first-seen"))
}

func TestMapNoTimestampsOmitsObject(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, intel.DetailRecord{})
	require.NoError(t, err)
	assert.Nil(t, findObject(ev, "timestamp"))
}

func TestMapAliases(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	actor := intel.ActorRecord{
		ID:      1,
		Name:    "FANCY BEAR",
		KnownAs: "APT28, Sofacy , Pawn Storm",
		Origins: []intel.Entity{{Value: "Russian Federation"}},
	}

	ev, err := m.Map(context.Background(), actor, intel.DetailRecord{})
	require.NoError(t, err)

	org := findObject(ev, "organization")
	require.NotNil(t, org)
	require.Len(t, org.Attributes, 3)
	assert.Equal(t, "APT28", org.Attributes[0].Value)
	assert.Equal(t, "Sofacy", org.Attributes[1].Value, "alias tokens must be trimmed")
	assert.Equal(t, "Pawn Storm", org.Attributes[2].Value)

	assert.True(t, ev.HasTag("CrowdStrike:adversary:origin: RUSSIAN FEDERATION"))
}

func TestMapVictim(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	t.Run("aggregated object with curated and fallback tags", func(t *testing.T) {
		actor := intel.ActorRecord{
			ID:               1,
			Name:             "FANCY BEAR",
			TargetCountries:  []intel.Entity{{Value: "Eastern Europe"}, {Value: "Atlantis"}},
			TargetIndustries: []intel.Entity{{Value: "Financial Services"}, {Value: "Basket Weaving"}},
		}

		ev, err := m.Map(context.Background(), actor, intel.DetailRecord{})
		require.NoError(t, err)

		victim := findObject(ev, "victim")
		require.NotNil(t, victim)
		assert.Len(t, victim.Attributes, 4)

		assert.True(t, ev.HasTag(`misp-galaxy:region="151 - Eastern Europe"`), "curated regional tag")
		assert.True(t, ev.HasTag(`misp-galaxy:target-information="Atlantis"`), "generic fallback tag")
		assert.True(t, ev.HasTag(`misp-galaxy:sector="finance"`), "normalized sector")
		assert.True(t, ev.HasTag(`misp-galaxy:sector="basket weaving"`), "unknown sector lower-cased")
	})

	t.Run("no targets means no victim object", func(t *testing.T) {
		ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 2, Name: "FANCY BEAR"}, intel.DetailRecord{})
		require.NoError(t, err)
		assert.Nil(t, findObject(ev, "victim"))
	})
}

func TestMapComplianceTags(t *testing.T) {
	cfg := Config{
		Taxonomic: map[string]bool{
			TaxonomicType: true,
			TaxonomicIEP2: true,
			TaxonomicTLP:  true,
		},
	}
	m := newTestMapper(cfg, nil)

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, intel.DetailRecord{})
	require.NoError(t, err)

	assert.True(t, ev.HasTag("type:CYBINT"))
	assert.True(t, ev.HasTag(`iep2-policy:attribution="must"`))
	assert.False(t, ev.HasTag(`iep2-policy:iep_version="2.0"`), "version tag needs its own toggle")
	assert.True(t, ev.HasTag("tlp:amber"))
	assert.False(t, ev.HasTag(`iep:provider-attribution="MUST"`), "iep family not enabled")
}

func TestMapStaticTags(t *testing.T) {
	cfg := Config{StaticTags: []string{"crowdstrike", " intel-feed "}}
	m := newTestMapper(cfg, nil)

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, intel.DetailRecord{})
	require.NoError(t, err)
	assert.True(t, ev.HasTag("crowdstrike"))
	assert.True(t, ev.HasTag("intel-feed"))
}

func TestMapDetailSections(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	detail := intel.DetailRecord{
		ID:          1,
		URL:         "https://falcon.crowdstrike.com/intelligence/actors/fancy-bear/",
		Description: "GRU-linked intrusion set",
		ActorType:   "targeted",
		Motivations: []intel.Entity{{Value: "Espionage"}},
	}

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, detail)
	require.NoError(t, err)

	var link *misp.Attribute
	for _, attr := range ev.Attributes {
		if attr.Type == "link" {
			link = attr
		}
	}
	require.NotNil(t, link)
	assert.Equal(t, detail.URL, link.Value)

	assert.True(t, ev.HasTag("CrowdStrike:adversary:type: TARGETED"))
	assert.True(t, ev.HasTag("CrowdStrike:adversary:motivation: ESPIONAGE"))

	// Description, actor type and motivation sections are cross-referenced.
	var internalRefs int
	for _, obj := range ev.Objects {
		if obj.Name == "internal-reference" {
			internalRefs++
		}
	}
	assert.Equal(t, 3, internalRefs)
}

func TestThreatLevel(t *testing.T) {
	assert.Equal(t, misp.ThreatLevelLow, threatLevel("Below Average"))
	assert.Equal(t, misp.ThreatLevelHigh, threatLevel("Above Average"))
	assert.Equal(t, misp.ThreatLevelMedium, threatLevel("Average"))
	assert.Equal(t, misp.ThreatLevelMedium, threatLevel(""))
}

func TestProperName(t *testing.T) {
	assert.Equal(t, "Fancy Bear", properName("FANCY BEAR"))
	assert.Equal(t, "Outbreak", properName("outbreak"))
}
