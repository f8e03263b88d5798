package mapper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
	"github.com/alhumaw/MISP-tools-fork/internal/intel"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
	"github.com/alhumaw/MISP-tools-fork/internal/misp"
)

// Taxonomic toggle keys understood by the compliance tagger.
const (
	TaxonomicType              = "type"
	TaxonomicInfoSecDataSource = "information_security_data_source"
	TaxonomicIEP               = "iep"
	TaxonomicIEP2              = "iep2"
	TaxonomicIEP2Version       = "iep2_version"
	TaxonomicTLP               = "tlp"
)

// Config is the immutable mapping configuration.
type Config struct {
	VerboseTags   bool
	Publish       bool
	UnknownRegion string
	StaticTags    []string
	Taxonomic     map[string]bool
	Tables        Tables
}

// Mapper turns an actor record and its optional detail record into a MISP
// event. Map is deterministic for identical inputs apart from generated
// UUIDs, and never mutates shared state; the cluster map is read-only.
type Mapper struct {
	cfg        Config
	org        misp.Organisation
	clusterMap map[string]*misp.ClusterRef
	log        logger.Logger
}

func New(cfg Config, org misp.Organisation, clusterMap map[string]*misp.ClusterRef, log logger.Logger) *Mapper {
	if cfg.Tables.BranchRegions == nil {
		cfg.Tables = DefaultTables()
	}
	return &Mapper{cfg: cfg, org: org, clusterMap: clusterMap, log: log}
}

// eventState carries the per-record naming context shared by the
// sub-transforms, plus the internal-reference chain under construction.
type eventState struct {
	actorName string
	slug      string
	branch    string
	internal  *misp.Object
	toRef     []*misp.Object
}

func (s *eventState) internalRef() *misp.Object {
	if s.internal == nil {
		s.internal = misp.NewObject("internal-reference")
		s.internal.AddAttribute("type", "Adversary detail")
	}
	return s.internal
}

func (s *eventState) reference(obj *misp.Object) {
	s.toRef = append(s.toRef, obj)
}

// Map builds the event for one actor. Only the name is mandatory; every
// other field degrades to omission. A missing name fails the record.
func (m *Mapper) Map(ctx context.Context, actor intel.ActorRecord, detail intel.DetailRecord) (*misp.Event, error) {
	if strings.TrimSpace(actor.Name) == "" {
		return nil, fmt.Errorf("adversary %d missing mandatory field name", actor.ID)
	}

	ev := misp.NewEvent()
	ev.Orgc = m.org
	ev.Published = m.cfg.Publish

	if actor.FirstActivityDate != 0 {
		ev.Date = time.Unix(actor.FirstActivityDate, 0).UTC().Format("2006-01-02")
	} else if actor.LastActivityDate != 0 {
		ev.Date = time.Unix(actor.LastActivityDate, 0).UTC().Format("2006-01-02")
	}

	state := &eventState{
		actorName: actor.Name,
		slug:      actorSlug(actor, detail),
		branch:    branchToken(actor.Name),
	}

	m.applyInfo(ev, actor)
	m.applyTags(ev, actor, state)
	m.applyDetail(ev, state, detail)
	m.applyKillChain(ev, state, detail)
	m.linkReferences(ev, state)
	m.applyTimestamps(ctx, ev, state, actor)
	m.applyAliases(ev, state, actor)
	m.applyVictim(ev, state, actor)
	m.applyCompliance(ev)

	return ev, nil
}

// actorSlug prefers the Intel API slug, falling back to the hyphenated name.
func actorSlug(actor intel.ActorRecord, detail intel.DetailRecord) string {
	if detail.Slug != "" {
		return detail.Slug
	}
	return strings.ReplaceAll(strings.ToLower(actor.Name), " ", "-")
}

// branchToken is the second whitespace token of the adversary name, the
// branch animal ("FANCY BEAR" -> "BEAR"). Single-token names fall back to
// the whole name.
func branchToken(name string) string {
	tokens := strings.Fields(name)
	if len(tokens) > 1 {
		return tokens[1]
	}
	return tokens[0]
}

func properName(name string) string {
	tokens := strings.Fields(name)
	for i, token := range tokens {
		tokens[i] = strings.ToUpper(token[:1]) + strings.ToLower(token[1:])
	}
	return strings.Join(tokens, " ")
}

// applyInfo sets the display name, appending the attributed region when the
// branch code matches a known branch.
func (m *Mapper) applyInfo(ev *misp.Event, actor intel.ActorRecord) {
	suffix := ""
	branch := strings.ToUpper(branchToken(actor.Name))
	if region, ok := m.cfg.Tables.BranchRegions[branch]; ok {
		suffix = fmt.Sprintf(" (%s)", region)
	}
	ev.Info = fmt.Sprintf("%s-%d %s%s", constants.EventPrefix, actor.ID, actor.Name, suffix)
}

func (m *Mapper) applyTags(ev *misp.Event, actor intel.ActorRecord, state *eventState) {
	if ref, ok := m.clusterMap[strings.ToUpper(actor.Name)]; ok && ref.TagName != "" {
		ev.AddTag(ref.TagName)
	} else {
		// No aligned cluster yet; fall back to a provisional source tag.
		ev.AddTag(fmt.Sprintf("CrowdStrike:adversary: %s", actor.Name))
	}

	ev.AddTag(fmt.Sprintf("CrowdStrike:adversary:branch: %s", state.branch))

	for _, tag := range m.cfg.StaticTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			ev.AddTag(tag)
		}
	}
}

// addDetailSection appends one internal-reference sub-record holding a named
// piece of adversary detail.
func (m *Mapper) addDetailSection(ev *misp.Event, state *eventState, name, text string) {
	obj := misp.NewObject("internal-reference")
	obj.AddAttribute("type", "Adversary detail")
	obj.AddAttribute("identifier", name)
	comment := obj.AddAttribute("comment", stripMarkup(text))

	if m.cfg.VerboseTags {
		section := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		comment.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: %s", section, state.actorName))
		comment.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: %s", state.slug, strings.ToUpper(name)))
	}

	ev.AddObject(obj)
	state.reference(obj)
}

func (m *Mapper) applyDetail(ev *misp.Event, state *eventState, detail intel.DetailRecord) {
	if detail.URL != "" {
		ev.AddAttribute("link", detail.URL)
	}

	if detail.Description != "" {
		internal := state.internalRef()
		internal.AddAttribute("identifier", "Description")
		desc := internal.AddAttribute("comment", detail.Description)
		if m.cfg.VerboseTags {
			desc.AddTag(fmt.Sprintf("CrowdStrike:adversary:description: %s", state.actorName))
			desc.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: DESCRIPTION", state.slug))
		}
	}

	if detail.ActorType != "" {
		m.addDetailSection(ev, state, "Actor Type", properName(detail.ActorType))
		ev.AddTag(fmt.Sprintf("CrowdStrike:adversary:type: %s", strings.ToUpper(detail.ActorType)))
	}

	if len(detail.Motivations) > 0 {
		values := make([]string, 0, len(detail.Motivations))
		for _, motive := range detail.Motivations {
			if motive.Value == "" {
				continue
			}
			values = append(values, motive.Value)
			ev.AddTag(fmt.Sprintf("CrowdStrike:adversary:motivation: %s", strings.ToUpper(motive.Value)))
		}
		if len(values) > 0 {
			m.addDetailSection(ev, state, "Motivation", strings.Join(values, "\n"))
		}
	}

	if detail.Capability != nil && detail.Capability.Value != "" {
		capability := detail.Capability.Value
		m.addDetailSection(ev, state, "Capability", capability)
		ev.AddTag(fmt.Sprintf("CrowdStrike:adversary:capability: %s", strings.ToUpper(capability)))
		ev.ThreatLevelID = threatLevel(capability)
	}
}

// threatLevel scores the reported capability: anything below average is low,
// anything above is high, the rest (including absence) is medium.
func threatLevel(capability string) int {
	upper := strings.ToUpper(capability)
	switch {
	case strings.Contains(upper, "BELOW") || strings.Contains(upper, "LOW"):
		return misp.ThreatLevelLow
	case strings.Contains(upper, "ABOVE") || strings.Contains(upper, "HIGH"):
		return misp.ThreatLevelHigh
	default:
		return misp.ThreatLevelMedium
	}
}

// linkReferences cross-references every detail sub-record with the root
// internal reference and with each other, then attaches the root.
func (m *Mapper) linkReferences(ev *misp.Event, state *eventState) {
	if state.internal == nil && len(state.toRef) == 0 {
		return
	}

	internal := state.internalRef()
	for _, ref := range state.toRef {
		internal.AddReference(ref.UUID, "Adversary detail")
		for _, other := range state.toRef {
			if other.UUID != ref.UUID {
				other.AddReference(ref.UUID, "Adversary detail")
			}
		}
	}

	ev.AddObject(internal)
}

// applyTimestamps reconciles the activity window. The source occasionally
// reports the window reversed, so the bounds are swapped when last < first;
// a missing first bound inherits the last one. Missing fields are logged
// and never abort the mapping.
func (m *Mapper) applyTimestamps(ctx context.Context, ev *misp.Event, state *eventState, actor intel.ActorRecord) {
	firstSeen := actor.FirstActivityDate
	lastSeen := actor.LastActivityDate

	if firstSeen == 0 {
		m.log.WarnwCtx(ctx, "Adversary missing field first_activity_date", "actor", actor.Name)
	}
	if lastSeen == 0 {
		m.log.WarnwCtx(ctx, "Adversary missing field last_activity_date", "actor", actor.Name)
	}

	if lastSeen < firstSeen {
		firstSeen, lastSeen = lastSeen, firstSeen
	}
	if firstSeen == 0 {
		firstSeen = lastSeen
	}

	ta := ev.AddAttribute("threat-actor", properName(actor.Name))
	ta.AddTag(fmt.Sprintf("CrowdStrike:adversary:branch: %s", state.branch))

	if firstSeen == 0 && lastSeen == 0 {
		return
	}

	tsObj := misp.NewObject("timestamp")
	if firstSeen != 0 {
		tsf := tsObj.AddAttribute("first-seen", time.Unix(firstSeen, 0).UTC().Format("2006-01-02T15:04:05"))
		if m.cfg.VerboseTags {
			tsf.AddTag(fmt.Sprintf("CrowdStrike:adversary:first-seen: %s", state.actorName))
			tsf.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: FIRST SEEN", state.slug))
		}
	}
	if lastSeen != 0 {
		tsl := tsObj.AddAttribute("last-seen", time.Unix(lastSeen, 0).UTC().Format("2006-01-02T15:04:05"))
		if m.cfg.VerboseTags {
			tsl.AddTag(fmt.Sprintf("CrowdStrike:adversary:last-seen: %s", state.actorName))
			tsl.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s: LAST SEEN", state.slug))
		}
	}
	ev.AddObject(tsObj)
}

// applyAliases emits one organization sub-record holding the comma-separated
// aliases, plus one residence attribute and origin tag per reported origin.
func (m *Mapper) applyAliases(ev *misp.Event, state *eventState, actor intel.ActorRecord) {
	if actor.KnownAs != "" {
		obj := misp.NewObject("organization")
		for _, alias := range strings.Split(actor.KnownAs, ",") {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			kao := obj.AddAttribute("alias", alias)
			if m.cfg.VerboseTags {
				kao.AddTag(fmt.Sprintf("CrowdStrike:adversary:branch: %s", state.branch))
				kao.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s:alias: %s", state.slug, strings.ToUpper(alias)))
			}
		}
		if len(obj.Attributes) > 0 {
			ev.AddObject(obj)
		}
	}

	for _, origin := range actor.Origins {
		if origin.Value == "" {
			continue
		}
		kar := ev.AddAttribute("country-of-residence", origin.Value)
		ev.AddTag(fmt.Sprintf("CrowdStrike:adversary:origin: %s", strings.ToUpper(origin.Value)))
		if m.cfg.VerboseTags {
			kar.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s:origin: %s", state.slug, strings.ToUpper(origin.Value)))
		}
	}
}

// applyVictim aggregates target countries and industries into a single
// victim sub-record, emitted only when at least one attribute exists.
func (m *Mapper) applyVictim(ev *misp.Event, state *eventState, actor intel.ActorRecord) {
	var victim *misp.Object

	for _, country := range actor.TargetCountries {
		region := country.Value
		if region == "" {
			continue
		}
		if victim == nil {
			victim = misp.NewObject("victim")
		}
		vic := victim.AddAttribute("regions", region)

		normalized := m.cfg.Tables.NormalizeLocale(region)
		if tag, ok := m.cfg.Tables.RegionTag(normalized); ok {
			ev.AddTag(tag)
		} else {
			if normalized == "" {
				normalized = m.cfg.UnknownRegion
			}
			ev.AddTag(fmt.Sprintf("misp-galaxy:target-information=%q", normalized))
		}

		if m.cfg.VerboseTags {
			vic.AddTag(fmt.Sprintf("CrowdStrike:target:location: %s", strings.ToUpper(normalized)))
			vic.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s:target:location: %s", state.slug, strings.ToUpper(normalized)))
		}
	}

	for _, industry := range actor.TargetIndustries {
		sector := industry.Value
		if sector == "" {
			continue
		}
		if victim == nil {
			victim = misp.NewObject("victim")
		}
		vic := victim.AddAttribute("sectors", sector)
		ev.AddTag(fmt.Sprintf("misp-galaxy:sector=%q", m.cfg.Tables.NormalizeSector(sector)))

		if m.cfg.VerboseTags {
			vic.AddTag(fmt.Sprintf("CrowdStrike:target:sector: %s", strings.ToUpper(sector)))
			vic.AddTag(fmt.Sprintf("CrowdStrike:adversary:%s:target:sector: %s", state.slug, strings.ToUpper(sector)))
		}
	}

	if victim != nil {
		ev.AddObject(victim)
	}
}

// applyCompliance appends the configured taxonomy families. Each family is
// independent and order-insensitive.
func (m *Mapper) applyCompliance(ev *misp.Event) {
	tax := m.cfg.Taxonomic

	if tax[TaxonomicType] {
		ev.AddTag("type:CYBINT")
	}
	if tax[TaxonomicInfoSecDataSource] {
		ev.AddTag(`information-security-data-source:integrability-interface="api"`)
		ev.AddTag(`information-security-data-source:originality="original-source"`)
		ev.AddTag(`information-security-data-source:type-of-source="security-product-vendor-website"`)
	}
	if tax[TaxonomicIEP] {
		ev.AddTag(`iep:commercial-use="MUST NOT"`)
		ev.AddTag(`iep:provider-attribution="MUST"`)
		ev.AddTag(`iep:unmodified-resale="MUST NOT"`)
	}
	if tax[TaxonomicIEP2] {
		if tax[TaxonomicIEP2Version] {
			ev.AddTag(`iep2-policy:iep_version="2.0"`)
		}
		ev.AddTag(`iep2-policy:attribution="must"`)
		ev.AddTag(`iep2-policy:unmodified_resale="must-not"`)
	}
	if tax[TaxonomicTLP] {
		ev.AddTag("tlp:amber")
	}
}
