package prompt

// ExecutionConfig is the configuration bundle a caller supplies for one
// pipeline run. Every layer is optional: a nil layer, or one whose fields are
// all blank, adds nothing to composed prompts.
type ExecutionConfig struct {
	GlobalMission   *GlobalMission   `yaml:"global_mission,omitempty" json:"global_mission,omitempty"`
	BusinessProfile *BusinessProfile `yaml:"business_profile,omitempty" json:"business_profile,omitempty"`
	Goals           *Goals           `yaml:"goals,omitempty" json:"goals,omitempty"`
	Preferences     *Preferences     `yaml:"preferences,omitempty" json:"preferences,omitempty"`

	// RoleOverrides replaces a role's base instructions for this run, keyed
	// by role id. Blank overrides are ignored.
	RoleOverrides map[string]string `yaml:"role_overrides,omitempty" json:"role_overrides,omitempty"`
}

// GlobalMission is the overarching goal every step must serve.
type GlobalMission struct {
	Objective      string `yaml:"objective" json:"objective"`
	SuccessMetrics string `yaml:"success_metrics" json:"success_metrics"`
	Timeline       string `yaml:"timeline" json:"timeline"`
	Constraints    string `yaml:"constraints" json:"constraints"`
}

// BusinessProfile describes the business the workflow works for.
type BusinessProfile struct {
	Name        string `yaml:"name" json:"name"`
	Sector      string `yaml:"sector" json:"sector"`
	Location    string `yaml:"location" json:"location"`
	Website     string `yaml:"website" json:"website"`
	Description string `yaml:"description" json:"description"`
}

// Goals are the marketing targets for the run.
type Goals struct {
	PrimaryGoal    string `yaml:"primary_goal" json:"primary_goal"`
	TargetVolume   string `yaml:"target_volume" json:"target_volume"`
	Budget         string `yaml:"budget" json:"budget"`
	Audience       string `yaml:"audience" json:"audience"`
	Differentiator string `yaml:"differentiator" json:"differentiator"`
}

// Preferences are the operating preferences applied to every step.
type Preferences struct {
	Tone               string `yaml:"tone" json:"tone"`
	Cadence            string `yaml:"cadence" json:"cadence"`
	ResponseLatency    string `yaml:"response_latency" json:"response_latency"`
	CustomInstructions string `yaml:"custom_instructions" json:"custom_instructions"`
}

// MissionSummary returns the mission objective, or "" when there is none.
func (c ExecutionConfig) MissionSummary() string {
	if c.GlobalMission == nil {
		return ""
	}
	return clean(c.GlobalMission.Objective)
}
