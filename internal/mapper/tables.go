package mapper

import "strings"

// Tables holds the immutable lookup data injected into the mapper: branch
// codes, curated regional tags, sector vocabulary and locale aliases. They
// are configuration data, not global state.
type Tables struct {
	// BranchRegions maps the adversary branch code (the animal token of the
	// name) to the attributed region appended to the event info string.
	BranchRegions map[string]string
	// RegionTags maps a normalized target locale to a curated regional
	// galaxy tag. Locales without an entry fall back to the generic
	// target-information tag.
	RegionTags map[string]string
	// SectorNames normalizes reported industry names into the sector galaxy
	// vocabulary.
	SectorNames map[string]string
	// LocaleAliases rewrites source locale spellings before region lookup.
	LocaleAliases map[string]string
}

// DefaultTables returns the built-in lookup data for the CrowdStrike
// adversary naming scheme.
func DefaultTables() Tables {
	return Tables{
		BranchRegions: map[string]string{
			"BEAR":     "Russia",
			"BUFFALO":  "Vietnam",
			"CHOLLIMA": "North Korea",
			"CRANE":    "South Korea",
			"HAWK":     "Syria",
			"JACKAL":   "Hacktivist",
			"KITTEN":   "Iran",
			"LEOPARD":  "Pakistan",
			"OCELOT":   "Colombia",
			"PANDA":    "China",
			"SPIDER":   "eCrime",
			"TIGER":    "India",
			"WOLF":     "Turkey",
		},
		RegionTags: map[string]string{
			"Eastern Europe":  `misp-galaxy:region="151 - Eastern Europe"`,
			"Northern Europe": `misp-galaxy:region="154 - Northern Europe"`,
			"Western Europe":  `misp-galaxy:region="155 - Western Europe"`,
			"North America":   `misp-galaxy:region="021 - Northern America"`,
			"South America":   `misp-galaxy:region="005 - South America"`,
			"Central Asia":    `misp-galaxy:region="143 - Central Asia"`,
			"East Asia":       `misp-galaxy:region="030 - Eastern Asia"`,
			"South Asia":      `misp-galaxy:region="034 - Southern Asia"`,
			"Southeast Asia":  `misp-galaxy:region="035 - South-eastern Asia"`,
			"Middle East":     `misp-galaxy:region="145 - Western Asia"`,
			"North Africa":    `misp-galaxy:region="015 - Northern Africa"`,
			"Oceania":         `misp-galaxy:region="009 - Oceania"`,
		},
		SectorNames: map[string]string{
			"Academic":             "education",
			"Aerospace":            "aerospace",
			"Agriculture":          "agriculture",
			"Chemicals":            "chemical",
			"Defense":              "defence",
			"Dissident":            "dissidence",
			"Energy":               "energy",
			"Extractive":           "mining",
			"Financial Management": "finance",
			"Financial Services":   "finance",
			"Government":           "government-nation",
			"Healthcare":           "healthcare",
			"Insurance":            "insurance",
			"International Government": "government-international",
			"Media":                "news-media",
			"NGO":                  "non-profit",
			"Oil and Gas":          "oil-and-gas",
			"Pharmaceuticals":      "pharmacy",
			"Technology":           "technology",
			"Telecommunications":   "telecoms",
			"Transportation":       "transport",
			"Utilities":            "energy",
		},
		LocaleAliases: map[string]string{
			"Korea (South)":             "South Korea",
			"Korea (North)":             "North Korea",
			"Russian Federation":        "Russia",
			"United States of America":  "United States",
			"Viet Nam":                  "Vietnam",
			"Syrian Arab Republic":      "Syria",
			"Iran (Islamic Republic of)": "Iran",
		},
	}
}

// NormalizeLocale rewrites a reported locale through the alias table.
func (t Tables) NormalizeLocale(locale string) string {
	if alias, ok := t.LocaleAliases[locale]; ok {
		return alias
	}
	return locale
}

// NormalizeSector maps a reported industry onto the sector vocabulary,
// falling back to the lower-cased reported name.
func (t Tables) NormalizeSector(sector string) string {
	if name, ok := t.SectorNames[sector]; ok {
		return name
	}
	return strings.ToLower(sector)
}

// RegionTag returns the curated tag for a normalized locale, or false when
// only the generic fallback applies.
func (t Tables) RegionTag(locale string) (string, bool) {
	tag, ok := t.RegionTags[locale]
	return tag, ok
}
