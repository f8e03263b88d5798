package mapper

import (
	"fmt"
	"strings"

	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
)

const (
	predicateFoothold   = "Initial Foothold"
	predicateObjectives = "Action on Objectives"
)

// killChainPhase describes one of the seven recognized attack phases and how
// it is tagged with the unified-kill-chain taxonomy.
type killChainPhase struct {
	display   string
	slug      string
	predicate string
	text      func(kc *intel.KillChain) string
}

var killChainPhases = []killChainPhase{
	{"Reconnaissance", "reconnaissance", predicateFoothold, func(kc *intel.KillChain) string { return kc.Reconnaissance }},
	{"Weaponization", "weaponization", predicateFoothold, func(kc *intel.KillChain) string { return kc.Weaponization }},
	{"Delivery", "delivery", predicateFoothold, func(kc *intel.KillChain) string { return kc.Delivery }},
	{"Exploitation", "exploitation", predicateFoothold, func(kc *intel.KillChain) string { return kc.Exploitation }},
	{"Installation", "installation", predicateFoothold, func(kc *intel.KillChain) string { return kc.Installation }},
	{"Command and Control", "command-and-control", predicateFoothold, func(kc *intel.KillChain) string { return kc.CommandAndControl }},
	{"Objectives", "objectives", predicateObjectives, func(kc *intel.KillChain) string { return kc.ActionsAndObjectives }},
}

// stripMarkup removes the HTML artifacts the Intel API leaks into free text.
func stripMarkup(text string) string {
	text = strings.ReplaceAll(text, "\t", "")
	return strings.ReplaceAll(text, "&nbsp;", "")
}

func isUnknownText(text string) bool {
	return text == "Unknown" || text == "N/A"
}

// exploitationTagTokens splits exploitation free text into taggable tokens:
// comma-separated fragments of at most four words. Longer fragments are
// prose, not technique names.
func exploitationTagTokens(text string) []string {
	var tokens []string
	for _, line := range strings.Split(text, "\r\n") {
		if line == "" || isUnknownText(line) {
			continue
		}
		for _, fragment := range strings.Split(line, ",") {
			fragment = strings.TrimSpace(fragment)
			if fragment == "" {
				continue
			}
			if len(strings.Fields(fragment)) <= 4 {
				tokens = append(tokens, fragment)
			}
		}
	}
	return tokens
}

func unifiedKillChainTag(phase killChainPhase) string {
	return fmt.Sprintf("unified-kill-chain:%s=%q", phase.predicate, phase.slug)
}

// applyKillChain decomposes the reported kill chain into one internal
// reference sub-record per present phase. The exploitation phase is skipped
// entirely for placeholder text; in verbose mode its technique tokens become
// individual attribute tags.
func (m *Mapper) applyKillChain(ev *misp.Event, state *eventState, detail intel.DetailRecord) {
	kc := detail.KillChain
	if kc == nil {
		return
	}

	for _, phase := range killChainPhases {
		text := stripMarkup(phase.text(kc))
		if text == "" {
			continue
		}
		if phase.slug == "exploitation" && isUnknownText(text) {
			continue
		}

		obj := misp.NewObject("internal-reference")
		obj.AddAttribute("type", "Adversary detail")
		obj.AddAttribute("identifier", phase.display)
		comment := obj.AddAttribute("comment", text)
		comment.AddTag(unifiedKillChainTag(phase))

		if m.cfg.VerboseTags {
			comment.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: %s", phase.slug, state.actorName))
			comment.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: %s", state.slug, strings.ToUpper(phase.display)))

			if phase.slug == "exploitation" {
				for _, token := range exploitationTagTokens(text) {
					comment.AddTag(fmt.Sprintf("CrowdStrike:adversary:exploitation: %s", strings.ToUpper(token)))
				}
			}
		}

		ev.AddObject(obj)
		state.reference(obj)
	}
}
