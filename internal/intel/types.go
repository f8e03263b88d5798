package intel

// Entity is an {id, value} pair as returned by the Intel API for
// motivations, origins, target countries and target industries.
type Entity struct {
	ID    int64  `json:"id,omitempty"`
	Value string `json:"value"`
}

// KillChain holds the free-text attack phase descriptions reported for an
// adversary. Empty string means the phase was not reported.
type KillChain struct {
	Reconnaissance       string `json:"reconnaissance,omitempty"`
	Weaponization        string `json:"weaponization,omitempty"`
	Delivery             string `json:"delivery,omitempty"`
	Exploitation         string `json:"exploitation,omitempty"`
	Installation         string `json:"installation,omitempty"`
	CommandAndControl    string `json:"command_and_control,omitempty"`
	ActionsAndObjectives string `json:"actions_and_objectives,omitempty"`
}

// ActorRecord is a threat-actor summary from the Intel API delta feed.
// Timestamps are unix seconds; zero means the field was not reported.
// Immutable once fetched.
type ActorRecord struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	FirstActivityDate int64    `json:"first_activity_date,omitempty"`
	LastActivityDate  int64    `json:"last_activity_date,omitempty"`
	LastModifiedDate  int64    `json:"last_modified_date,omitempty"`
	KnownAs           string   `json:"known_as,omitempty"`
	Origins           []Entity `json:"origins,omitempty"`
	TargetCountries   []Entity `json:"target_countries,omitempty"`
	TargetIndustries  []Entity `json:"target_industries,omitempty"`
}

// DetailRecord is the full adversary detail joined to an ActorRecord by ID.
// The whole record is optional; absent fields degrade mapping gracefully.
type DetailRecord struct {
	ID          int64      `json:"id"`
	Slug        string     `json:"slug,omitempty"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	ActorType   string     `json:"actor_type,omitempty"`
	Motivations []Entity   `json:"motivations,omitempty"`
	Capability  *Entity    `json:"capability,omitempty"`
	KillChain   *KillChain `json:"kill_chain,omitempty"`
}
