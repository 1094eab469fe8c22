package schema

// #region vocabulary

// Vocab is the closed set of legal values for one enumerable field.
type Vocab struct {
	Field  string // flattened field name, e.g. "odd_attributes.weather"
	Values []string
	Notes  map[string]string // optional prompt hints per value
}

// Contains reports whether v is a legal value.
func (v Vocab) Contains(s string) bool {
	for _, x := range v.Values {
		if x == s {
			return true
		}
	}
	return false
}

// Section groups vocabularies under a heading in the schema guide.
type Section struct {
	Title  string
	Fields []Vocab
}

// Vocabulary is the taxonomy in schema order. Prompts are rendered from it
// and Parse validates against it, so the two cannot drift.
var Vocabulary = []Section{
	{
		Title: "ODD & Phenomenology",
		Fields: []Vocab{
			{Field: "odd_attributes.weather", Values: []string{"clear", "overcast", "rain", "heavy_rain", "snow", "fog"}},
			{Field: "odd_attributes.time_of_day", Values: []string{"day", "night", "dawn_dusk"}},
			{Field: "odd_attributes.lighting_condition", Values: []string{"nominal", "glare_high", "shadow_contrast", "pitch_black", "streetlights_only"}},
			{Field: "odd_attributes.road_surface_friction", Values: []string{"dry", "wet", "icy", "snowy", "muddy", "gravel"}},
			{Field: "odd_attributes.sensor_integrity", Values: []string{"nominal", "lens_flare", "droplets_on_lens", "dirt_on_lens", "motion_blur", "sun_glare"}},
		},
	},
	{
		Title: "Topology & Map",
		Fields: []Vocab{
			{Field: "road_topology.scene_type", Values: []string{"urban_street", "highway", "intersection", "highway_ramp", "parking_lot", "construction_zone", "rural_road"}},
			{Field: "road_topology.lane_configuration", Values: []string{"straight", "curve", "merge_left", "merge_right", "roundabout", "intersection_4way", "intersection_t_junction"}},
			{
				Field:  "road_topology.drivable_area_status",
				Values: []string{"nominal", "restricted_by_static_obstacle", "blocked_by_dynamic_object"},
				Notes: map[string]string{
					"restricted_by_static_obstacle": "cones/debris",
					"blocked_by_dynamic_object":     "vehicle/pedestrian",
				},
			},
			{Field: "road_topology.traffic_controls", Values: []string{"green_light", "red_light", "yellow_light", "stop_sign", "yield_sign", "police_manual", "none"}},
		},
	},
	{
		Title: "Actor Dynamics",
		Fields: []Vocab{
			{Field: "key_interacting_agents.vru_status", Values: []string{VRUNone, "legal_crossing", "jaywalking_fast", "jaywalking_hesitant", VRURoadsideStatic, "cyclist_in_lane"}},
			{Field: "key_interacting_agents.lead_vehicle_behavior", Values: []string{"none", "nominal", "braking_suddenly", "stalled", "turning"}},
			{Field: "key_interacting_agents.adjacent_vehicle_behavior", Values: []string{"none", "nominal", "cutting_in_aggressive", "drifting", "tailgating"}},
			{Field: "key_interacting_agents.special_agent_class", Values: []string{"none", "police_car", "ambulance", "fire_truck", "school_bus", "construction_machinery"}},
		},
	},
	{
		Title: "Causal Reasoning",
		Fields: []Vocab{
			{Field: "scenario_criticality.primary_challenge", Values: []string{"none", "occlusion_risk", "prediction_uncertainty", "violation_of_map_topology", "perception_degradation", "rule_violation"}},
			{Field: "scenario_criticality.ego_required_action", Values: []string{ActionLaneKeep, "slow_down", ActionStop, ActionNudgeAround, "yield", ActionEmergencyBrake, "lane_change", "unprotected_turn"}},
			{Field: "scenario_criticality.blocking_factor", Values: []string{BlockerNone, "construction_barrier", "pedestrian", "vehicle", "debris", "flood"}},
		},
	},
	{
		Title: "WOD-E2E Tags",
		Fields: []Vocab{
			{Field: "wod_e2e_tags", Values: []string{TagConstruction, "intersection_complex", "vru_hazard", "fod_debris", "weather_adverse", "special_vehicle", "lane_diversion", "sensor_failure"}},
		},
	},
}

// #endregion vocabulary

// #region lookup

var vocabByField = func() map[string]Vocab {
	m := make(map[string]Vocab)
	for _, s := range Vocabulary {
		for _, v := range s.Fields {
			m[v.Field] = v
		}
	}
	return m
}()

// Lookup returns the vocabulary for a flattened field name.
func Lookup(field string) (Vocab, bool) {
	v, ok := vocabByField[field]
	return v, ok
}

// #endregion lookup
