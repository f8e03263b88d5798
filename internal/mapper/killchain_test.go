package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alhumaw/MISP-tools-fork/internal/intel"
)

func killChainObjects(t *testing.T, m *Mapper, detail intel.DetailRecord) []objectView {
	t.Helper()

	ev, err := m.Map(context.Background(), intel.ActorRecord{ID: 1, Name: "FANCY BEAR"}, detail)
	require.NoError(t, err)

	var views []objectView
	for _, obj := range ev.Objects {
		if obj.Name != "internal-reference" {
			continue
		}
		view := objectView{}
		for _, attr := range obj.Attributes {
			switch attr.Type {
			case "identifier":
				view.identifier = attr.Value
			case "comment":
				view.comment = attr.Value
				view.tags = attr.Tags
			}
		}
		if view.identifier != "" {
			views = append(views, view)
		}
	}
	return views
}

type objectView struct {
	identifier string
	comment    string
	tags       []string
}

func TestApplyKillChainPhases(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	detail := intel.DetailRecord{
		KillChain: &intel.KillChain{
			Reconnaissance:       "Extensive OSINT collection",
			Delivery:             "Spearphishing with malicious attachments",
			ActionsAndObjectives: "Exfiltration of diplomatic cables",
		},
	}

	views := killChainObjects(t, m, detail)
	require.Len(t, views, 3)

	byName := map[string]objectView{}
	for _, view := range views {
		byName[view.identifier] = view
	}

	recon, ok := byName["Reconnaissance"]
	require.True(t, ok)
	assert.Contains(t, recon.tags, `unified-kill-chain:Initial Foothold="reconnaissance"`)

	objectives, ok := byName["Objectives"]
	require.True(t, ok)
	assert.Equal(t, "Exfiltration of diplomatic cables", objectives.comment)
	assert.Contains(t, objectives.tags, `unified-kill-chain:Action on Objectives="objectives"`)

	_, present := byName["Weaponization"]
	assert.False(t, present, "empty phases are omitted")
}

func TestApplyKillChainSkipsUnknownExploitation(t *testing.T) {
	m := newTestMapper(Config{}, nil)

	for _, placeholder := range []string{"Unknown", "N/A"} {
		detail := intel.DetailRecord{
			KillChain: &intel.KillChain{Exploitation: placeholder},
		}
		views := killChainObjects(t, m, detail)
		assert.Empty(t, views, "placeholder %q must not produce a sub-record", placeholder)
	}
}

func TestApplyKillChainExploitationTokenTags(t *testing.T) {
	m := newTestMapper(Config{VerboseTags: true}, nil)
	detail := intel.DetailRecord{
		KillChain: &intel.KillChain{
			Exploitation: "Spearphishing, Waterholing, ExploitKitDeliveryViaThirdPartySite\r\n" +
				"Delivered through a long chain of compromised infrastructure nodes",
		},
	}

	views := killChainObjects(t, m, detail)
	require.Len(t, views, 1)

	tags := views[0].tags
	assert.Contains(t, tags, "CrowdStrike:adversary:exploitation: SPEARPHISHING")
	assert.Contains(t, tags, "CrowdStrike:adversary:exploitation: WATERHOLING")
	assert.Contains(t, tags, "CrowdStrike:adversary:exploitation: EXPLOITKITDELIVERYVIATHIRDPARTYSITE")

	for _, tag := range tags {
		assert.NotContains(t, tag, "LONG CHAIN", "prose fragments must not become tags")
	}
}

func TestApplyKillChainStripsMarkup(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	detail := intel.DetailRecord{
		KillChain: &intel.KillChain{
			Delivery: "Spearphishing\twith&nbsp;attachments",
		},
	}

	views := killChainObjects(t, m, detail)
	require.Len(t, views, 1)
	assert.Equal(t, "Spearphishingwithattachments", views[0].comment)
}

func TestApplyKillChainNilKillChain(t *testing.T) {
	m := newTestMapper(Config{}, nil)
	assert.Empty(t, killChainObjects(t, m, intel.DetailRecord{}))
}

func TestExploitationTagTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "comma separated techniques",
			text: "Spearphishing, Waterholing",
			want: []string{"Spearphishing", "Waterholing"},
		},
		{
			name: "prose fragments filtered",
			text: "Spearphishing, a very long description of tradecraft",
			want: []string{"Spearphishing"},
		},
		{
			name: "crlf lines split first",
			text: "Spearphishing\r\nUnknown\r\nSQL Injection",
			want: []string{"Spearphishing", "SQL Injection"},
		},
		{
			name: "four word fragments kept",
			text: "Exploit Kit Delivery Chain",
			want: []string{"Exploit Kit Delivery Chain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exploitationTagTokens(tt.text))
		})
	}
}
