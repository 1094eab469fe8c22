package schema

import (
	"fmt"
	"strings"
)

// #region schema-guide

// SchemaGuide renders the closed vocabulary as prompt text.
func SchemaGuide() string {
	var b strings.Builder
	b.WriteString("### SCHEMA VOCABULARY (STRICT ENUMS)\n")
	b.WriteString("Use ONLY these values. Do not invent new terms.\n")
	for i, s := range Vocabulary {
		fmt.Fprintf(&b, "\n**%c. %s**\n", 'A'+i, s.Title)
		for _, v := range s.Fields {
			name := v.Field
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			quoted := make([]string, len(v.Values))
			for j, val := range v.Values {
				quoted[j] = fmt.Sprintf("%q", val)
				if note, ok := v.Notes[val]; ok {
					quoted[j] += " (" + note + ")"
				}
			}
			list := ""
			if isListField(v.Field) {
				list = " (select list)"
			}
			fmt.Fprintf(&b, "   - `%s`%s: [%s]\n", name, list, strings.Join(quoted, ", "))
		}
	}
	return b.String()
}

func isListField(field string) bool {
	return field == "road_topology.traffic_controls" || field == "wod_e2e_tags"
}

// #endregion schema-guide

// #region skeleton

// OutputSkeleton is the exact object shape every response must follow.
const OutputSkeleton = `### OUTPUT JSON SKELETON
Output a JSON object with this exact structure:

{
  "odd_attributes": {
    "weather": "...",
    "time_of_day": "...",
    "lighting_condition": "...",
    "road_surface_friction": "...",
    "sensor_integrity": "..."
  },
  "road_topology": {
    "scene_type": "...",
    "lane_configuration": "...",
    "drivable_area_status": "...",
    "traffic_controls": ["..."]
  },
  "key_interacting_agents": {
    "vru_status": "...",
    "lead_vehicle_behavior": "...",
    "adjacent_vehicle_behavior": "...",
    "special_agent_class": "..."
  },
  "scenario_criticality": {
    "primary_challenge": "...",
    "ego_required_action": "...",
    "blocking_factor": "...",
    "risk_score": 0
  },
  "wod_e2e_tags": ["..."],
  "description": "One sentence summarizing the scenario hazards."
}
`

// #endregion skeleton

// #region scout-prompt

const scoutExample = `### EXAMPLE: construction lane drop
Inventory:
  [CAM_FRONT_LEFT]: 3 traffic drums (Large/0.92, Large/0.88, Med/0.85); 1 traffic cone (Med/0.88)
  [CAM_FRONT]: 1 construction worker (Med/0.75)
  [CAM_FRONT_RIGHT]: 1 car (Small/0.85)
Reasoning: drums taper across the left lane and are confirmed visually; the worker
stands beside the lane without entering it. The left lane is closed, so the ego
vehicle must shift right around the barrier.
Output:
{"odd_attributes":{"weather":"overcast","time_of_day":"day","lighting_condition":"nominal","road_surface_friction":"dry","sensor_integrity":"nominal"},
 "road_topology":{"scene_type":"construction_zone","lane_configuration":"merge_right","drivable_area_status":"restricted_by_static_obstacle","traffic_controls":["none"]},
 "key_interacting_agents":{"vru_status":"roadside_static","lead_vehicle_behavior":"nominal","adjacent_vehicle_behavior":"none","special_agent_class":"construction_machinery"},
 "scenario_criticality":{"primary_challenge":"violation_of_map_topology","ego_required_action":"nudge_around_static_obstacle","blocking_factor":"construction_barrier","risk_score":7},
 "wod_e2e_tags":["construction","lane_diversion"],
 "description":"Barrels close the left lane of an active construction zone, forcing a merge right."}
`

// ScoutSystemPrompt is the system instruction for a mining scout.
func ScoutSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a perception analyst extracting the scenario structure of a driving scene
for autonomous-vehicle validation. Analyze causality, topology and risk, not only objects.

### INPUT
1. Synchronized front-facing camera views (left, center, right). Analyze each, then synthesize.
2. A detector inventory: "[CAM]: Count Class (Size/Confidence)". Size Large is close,
   Small is far. Treat any detection below 0.8 confidence as a hypothesis to verify visually.

### REASONING
Inside <think> tags: sweep each view, confirm or reject each detection, assess
weather, lighting and surface, then decide topology and the required ego action.

`)
	b.WriteString(SchemaGuide())
	b.WriteString("\n")
	b.WriteString(OutputSkeleton)
	b.WriteString("\n")
	b.WriteString(scoutExample)
	b.WriteString("\nOutput ONLY the JSON object after your reasoning.\n")
	return b.String()
}

// #endregion scout-prompt

// #region judge-prompt

// JudgeSystemPrompt is the system instruction for consensus synthesis.
func JudgeSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are the chief safety officer for an autonomous-vehicle data mining system.
You receive reports from several independent scouts about one driving scene.

### GOAL
Synthesize a single ground-truth JSON object that resolves conflicts between scouts.

### RULES OF EVIDENCE
1. Trust grounding: if the detector lists an object, favor scouts that confirm it.
2. Safety bias: under ambiguity, err toward the higher risk.
3. Consistency: risk_score must match the severity of the description.

`)
	b.WriteString(SchemaGuide())
	b.WriteString("\n")
	b.WriteString(OutputSkeleton)
	b.WriteString("\nReturn ONLY the final JSON object. No markdown, no reasoning outside the JSON.\n")
	return b.String()
}

// #endregion judge-prompt
