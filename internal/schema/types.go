package schema

import "strings"

// #region placeholders

// Placeholder is the unfilled marker the output skeleton uses for every field.
const Placeholder = "..."

// DetectorErrorInventory replaces the inventory when the detector call fails.
const DetectorErrorInventory = "Detector Error"

// NoDetectorInventory is the judge's grounding text when no scout carried an inventory.
const NoDetectorInventory = "No Detector Data"

// HasGrounding is false for blank inventories and for the sentinels that stand
// in for a missing detector result.
func HasGrounding(inventory string) bool {
	switch strings.TrimSpace(inventory) {
	case "", DetectorErrorInventory, NoDetectorInventory:
		return false
	}
	return true
}

// #endregion placeholders

// #region verifier-constants

// Values the verifier and judge branch on. The full vocabulary lives in vocab.go.
const (
	VRUNone           = "none"
	VRURoadsideStatic = "roadside_static"

	ActionLaneKeep       = "lane_keep"
	ActionStop           = "stop"
	ActionEmergencyBrake = "emergency_brake"
	ActionNudgeAround    = "nudge_around_static_obstacle"

	BlockerNone = "none"

	TagConstruction = "construction"
)

// #endregion verifier-constants

// #region annotation

// ODDAttributes is the environment and sensor condition section.
type ODDAttributes struct {
	Weather             string `json:"weather"`
	TimeOfDay           string `json:"time_of_day"`
	LightingCondition   string `json:"lighting_condition"`
	RoadSurfaceFriction string `json:"road_surface_friction"`
	SensorIntegrity     string `json:"sensor_integrity"`
}

// RoadTopology is the static map layer.
type RoadTopology struct {
	SceneType          string     `json:"scene_type"`
	LaneConfiguration  string     `json:"lane_configuration"`
	DrivableAreaStatus string     `json:"drivable_area_status"`
	TrafficControls    StringList `json:"traffic_controls"`
}

// InteractingAgents describes active-agent dynamics around the ego vehicle.
type InteractingAgents struct {
	VRUStatus               string `json:"vru_status"`
	LeadVehicleBehavior     string `json:"lead_vehicle_behavior"`
	AdjacentVehicleBehavior string `json:"adjacent_vehicle_behavior"`
	SpecialAgentClass       string `json:"special_agent_class"`
}

// Criticality is the causal layer: what the planner must do and why.
type Criticality struct {
	PrimaryChallenge  string    `json:"primary_challenge"`
	EgoRequiredAction string    `json:"ego_required_action"`
	BlockingFactor    string    `json:"blocking_factor"`
	RiskScore         RiskScore `json:"risk_score"`
}

// Annotation is the structured scene annotation a scout or the judge produces.
type Annotation struct {
	ODD         ODDAttributes     `json:"odd_attributes"`
	Topology    RoadTopology      `json:"road_topology"`
	Agents      InteractingAgents `json:"key_interacting_agents"`
	Criticality Criticality       `json:"scenario_criticality"`
	Tags        StringList        `json:"wod_e2e_tags"`
	Description string            `json:"description"`
}

// HasTag reports whether tag is in the annotation's tag set.
func (a Annotation) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Field is one flattened string value of an annotation.
type Field struct {
	Name  string
	Value string
}

// Fields flattens every string-valued field in schema order.
// List fields contribute one entry per element.
func (a Annotation) Fields() []Field {
	fields := make([]Field, 0, 24)
	for _, ref := range a.scalarRefs() {
		fields = append(fields, Field{Name: ref.name, Value: *ref.ptr})
	}
	for _, l := range a.listRefs() {
		for _, v := range *l.ptr {
			fields = append(fields, Field{Name: l.name, Value: v})
		}
	}
	fields = append(fields, Field{Name: "description", Value: a.Description})
	return fields
}

type scalarRef struct {
	name string
	ptr  *string
}

type listRef struct {
	name string
	ptr  *StringList
}

func (a *Annotation) scalarRefs() []scalarRef {
	return []scalarRef{
		{"odd_attributes.weather", &a.ODD.Weather},
		{"odd_attributes.time_of_day", &a.ODD.TimeOfDay},
		{"odd_attributes.lighting_condition", &a.ODD.LightingCondition},
		{"odd_attributes.road_surface_friction", &a.ODD.RoadSurfaceFriction},
		{"odd_attributes.sensor_integrity", &a.ODD.SensorIntegrity},
		{"road_topology.scene_type", &a.Topology.SceneType},
		{"road_topology.lane_configuration", &a.Topology.LaneConfiguration},
		{"road_topology.drivable_area_status", &a.Topology.DrivableAreaStatus},
		{"key_interacting_agents.vru_status", &a.Agents.VRUStatus},
		{"key_interacting_agents.lead_vehicle_behavior", &a.Agents.LeadVehicleBehavior},
		{"key_interacting_agents.adjacent_vehicle_behavior", &a.Agents.AdjacentVehicleBehavior},
		{"key_interacting_agents.special_agent_class", &a.Agents.SpecialAgentClass},
		{"scenario_criticality.primary_challenge", &a.Criticality.PrimaryChallenge},
		{"scenario_criticality.ego_required_action", &a.Criticality.EgoRequiredAction},
		{"scenario_criticality.blocking_factor", &a.Criticality.BlockingFactor},
	}
}

func (a *Annotation) listRefs() []listRef {
	return []listRef{
		{"road_topology.traffic_controls", &a.Topology.TrafficControls},
		{"wod_e2e_tags", &a.Tags},
	}
}

// #endregion annotation

// #region usage

// Usage is the token accounting a backend reports for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// #endregion usage

// #region records

// ScoutRecord is one clean index entry: a validated annotation from one scout.
type ScoutRecord struct {
	RecordID string `json:"token"`
	Scout    string `json:"scout"`
	Annotation
	ReasoningTrace string `json:"reasoning_trace,omitempty"`
	Inventory      string `json:"inventory,omitempty"`
	Usage          *Usage `json:"usage,omitempty"`
}

// ConsensusRecord is the judge's single synthesized annotation for a record.
type ConsensusRecord struct {
	RecordID string `json:"token"`
	Annotation
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
	Inventory  string   `json:"inventory"`
	Candidates int      `json:"candidates"`
	Scouts     []string `json:"scouts"`
}

// #endregion records
