// Package prompt composes the instruction context sent to the generation
// client for one pipeline step.
//
// Layers are appended in a fixed order, mission first:
//
//	GLOBAL MISSION → BUSINESS CONTEXT → MARKETING GOALS → PREFERENCES →
//	YOUR ROLE → INPUT FROM THE PREVIOUS STEP → OUTPUT REQUIREMENTS
//
// Absent or blank layers are skipped without leaving a heading behind.
// Composition is pure: no I/O, no randomness, no map iteration.
package prompt

import (
	"strings"

	"missionflow/internal/roles"
)

// Section titles, in layering order.
const (
	TitleMission      = "GLOBAL MISSION"
	TitleBusiness     = "BUSINESS CONTEXT"
	TitleGoals        = "MARKETING GOALS"
	TitlePreferences  = "PREFERENCES"
	TitleRole         = "YOUR ROLE"
	TitlePriorOutput  = "INPUT FROM THE PREVIOUS STEP"
	TitleRequirements = "OUTPUT REQUIREMENTS"
)

const (
	headingPrefix    = "## "
	sectionSeparator = "\n\n"

	missionReminder = "Every action you take must serve this objective and stay coherent with the work of the other agents in this workflow."
	priorFraming    = "The previous step produced the input below. Use it as your starting point."
)

var requirements = []string{
	"- Apply the best practices of your field.",
	"- Deliver concrete, actionable output that can be used as is.",
	"- If you have to invent any data, keep it realistic and plausible for this business.",
}

// Section is one titled layer of a composed prompt.
type Section struct {
	Title string
	Body  string
}

// String renders the section with its heading.
func (s Section) String() string {
	return headingPrefix + s.Title + "\n" + s.Body
}

// Compose builds the instruction context for a step.
func Compose(role roles.AgentRole, cfg ExecutionConfig, priorOutput string) string {
	sections := Sections(role, cfg, priorOutput)
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.String()
	}
	return strings.Join(parts, sectionSeparator)
}

// Sections returns the non-empty layers in their fixed order.
func Sections(role roles.AgentRole, cfg ExecutionConfig, priorOutput string) []Section {
	var out []Section
	add := func(title, body string) {
		if body != "" {
			out = append(out, Section{Title: title, Body: body})
		}
	}

	add(TitleMission, missionBody(cfg.GlobalMission))
	add(TitleBusiness, businessBody(cfg.BusinessProfile))
	add(TitleGoals, goalsBody(cfg.Goals))
	add(TitlePreferences, preferencesBody(cfg.Preferences))

	// The role layer is always present.
	out = append(out, Section{Title: TitleRole, Body: roleInstructions(role, cfg)})

	if strings.TrimSpace(priorOutput) != "" {
		out = append(out, Section{Title: TitlePriorOutput, Body: priorFraming + "\n\n" + priorOutput})
	}

	out = append(out, Section{Title: TitleRequirements, Body: strings.Join(requirements, "\n")})
	return out
}

func missionBody(m *GlobalMission) string {
	if m == nil {
		return ""
	}
	body := fields(
		field{"Objective", m.Objective},
		field{"Success metrics", m.SuccessMetrics},
		field{"Timeline", m.Timeline},
		field{"Constraints", m.Constraints},
	)
	if body == "" {
		return ""
	}
	return body + "\n\n" + missionReminder
}

func businessBody(b *BusinessProfile) string {
	if b == nil {
		return ""
	}
	return fields(
		field{"Business", b.Name},
		field{"Sector", b.Sector},
		field{"Location", b.Location},
		field{"Website", b.Website},
		field{"Description", b.Description},
	)
}

func goalsBody(g *Goals) string {
	if g == nil {
		return ""
	}
	return fields(
		field{"Primary goal", g.PrimaryGoal},
		field{"Target volume", g.TargetVolume},
		field{"Budget", g.Budget},
		field{"Audience", g.Audience},
		field{"Differentiator", g.Differentiator},
	)
}

func preferencesBody(p *Preferences) string {
	if p == nil {
		return ""
	}
	return fields(
		field{"Tone", p.Tone},
		field{"Cadence", p.Cadence},
		field{"Expected response time", p.ResponseLatency},
		field{"Custom instructions", p.CustomInstructions},
	)
}

func roleInstructions(role roles.AgentRole, cfg ExecutionConfig) string {
	if override := clean(cfg.RoleOverrides[role.ID]); override != "" {
		return override
	}
	return clean(role.BaseInstructions)
}

type field struct {
	label string
	value string
}

// fields renders "Label: value" lines for the non-blank values.
func fields(fs ...field) string {
	var lines []string
	for _, f := range fs {
		if v := clean(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func clean(s string) string {
	return strings.TrimSpace(s)
}
