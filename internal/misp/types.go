package misp

import "github.com/google/uuid"

// Threat level IDs as defined by MISP.
const (
	ThreatLevelHigh   = 1
	ThreatLevelMedium = 2
	ThreatLevelLow    = 3
)

// AnalysisComplete marks an event whose analysis is finished.
const AnalysisComplete = 2

// Organisation identifies the creator org attached to events and clusters.
type Organisation struct {
	ID   string `json:"id"`
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Attribute is a single typed value on an event or object.
type Attribute struct {
	UUID               string   `json:"uuid"`
	Type               string   `json:"type"`
	Value              string   `json:"value"`
	DisableCorrelation bool     `json:"disable_correlation,omitempty"`
	Tags               []string `json:"tags,omitempty"`
}

// AddTag tags the attribute. Re-adding an existing tag is a no-op.
func (a *Attribute) AddTag(tag string) {
	for _, existing := range a.Tags {
		if existing == tag {
			return
		}
	}
	a.Tags = append(a.Tags, tag)
}

// ObjectReference links one object to another.
type ObjectReference struct {
	ReferencedUUID   string `json:"referenced_uuid"`
	RelationshipType string `json:"relationship_type"`
}

// Object is a structured sub-record of an event (internal-reference,
// timestamp, organization, victim).
type Object struct {
	UUID       string            `json:"uuid"`
	Name       string            `json:"name"`
	Attributes []*Attribute      `json:"attributes,omitempty"`
	References []ObjectReference `json:"references,omitempty"`
}

// NewObject returns an empty object of the given template name.
func NewObject(name string) *Object {
	return &Object{UUID: uuid.NewString(), Name: name}
}

// AddAttribute appends a typed attribute and returns it so callers can tag it.
func (o *Object) AddAttribute(attrType, value string) *Attribute {
	attr := &Attribute{
		UUID:               uuid.NewString(),
		Type:               attrType,
		Value:              value,
		DisableCorrelation: true,
	}
	o.Attributes = append(o.Attributes, attr)
	return attr
}

// AddReference records a relationship to another object.
func (o *Object) AddReference(referencedUUID, relationship string) {
	for _, ref := range o.References {
		if ref.ReferencedUUID == referencedUUID && ref.RelationshipType == relationship {
			return
		}
	}
	o.References = append(o.References, ObjectReference{
		ReferencedUUID:   referencedUUID,
		RelationshipType: relationship,
	})
}

// Event is the output unit of the sync. One event per actor per run; events
// are never updated in place across runs.
type Event struct {
	UUID          string       `json:"uuid"`
	Info          string       `json:"info"`
	Date          string       `json:"date,omitempty"`
	ThreatLevelID int          `json:"threat_level_id"`
	Analysis      int          `json:"analysis"`
	Published     bool         `json:"published"`
	Orgc          Organisation `json:"orgc"`
	Tags          []string     `json:"tags,omitempty"`
	Attributes    []*Attribute `json:"attributes,omitempty"`
	Objects       []*Object    `json:"objects,omitempty"`
}

// NewEvent returns an event with a fresh UUID and medium threat level.
func NewEvent() *Event {
	return &Event{
		UUID:          uuid.NewString(),
		ThreatLevelID: ThreatLevelMedium,
		Analysis:      AnalysisComplete,
	}
}

// AddTag tags the event. Re-adding an existing tag is a no-op.
func (e *Event) AddTag(tag string) {
	for _, existing := range e.Tags {
		if existing == tag {
			return
		}
	}
	e.Tags = append(e.Tags, tag)
}

// HasTag reports whether the event carries the tag.
func (e *Event) HasTag(tag string) bool {
	for _, existing := range e.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// AddAttribute appends a top-level attribute and returns it.
func (e *Event) AddAttribute(attrType, value string) *Attribute {
	attr := &Attribute{
		UUID:               uuid.NewString(),
		Type:               attrType,
		Value:              value,
		DisableCorrelation: true,
	}
	e.Attributes = append(e.Attributes, attr)
	return attr
}

// AddObject attaches a structured sub-record to the event.
func (e *Event) AddObject(obj *Object) *Object {
	e.Objects = append(e.Objects, obj)
	return obj
}

// ClusterElement is one classification key/value inside a galaxy cluster.
type ClusterElement struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GalaxyCluster is a threat-actor taxonomy entry in MISP. One cluster per
// distinct adversary identity; the value is the upper-cased actor name and
// must be unique within the galaxy.
type GalaxyCluster struct {
	ID           string           `json:"id,omitempty"`
	UUID         string           `json:"uuid,omitempty"`
	Type         string           `json:"type"`
	Value        string           `json:"value"`
	TagName      string           `json:"tag_name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Source       string           `json:"source,omitempty"`
	Authors      []string         `json:"authors,omitempty"`
	Distribution int              `json:"distribution"`
	Default      bool             `json:"default"`
	Deleted      bool             `json:"deleted,omitempty"`
	OrgcUUID     string           `json:"orgc_uuid,omitempty"`
	Elements     []ClusterElement `json:"elements,omitempty"`
}

// HasElement reports whether the cluster already carries the element.
func (c *GalaxyCluster) HasElement(key, value string) bool {
	for _, el := range c.Elements {
		if el.Key == key && el.Value == value {
			return true
		}
	}
	return false
}

// AddElement merges a classification element into the cluster. Idempotent:
// re-adding an existing element is a no-op. Returns true when the element
// was new.
func (c *GalaxyCluster) AddElement(key, value string) bool {
	if value == "" || c.HasElement(key, value) {
		return false
	}
	c.Elements = append(c.Elements, ClusterElement{Key: key, Value: value})
	return true
}

// ClusterRef is the registry entry tying one adversary identity to its
// galaxy cluster.
type ClusterRef struct {
	UUID    string `json:"uuid"`
	ID      string `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	Custom  bool   `json:"custom"`
	CSID    int64  `json:"cs_id"`
}
