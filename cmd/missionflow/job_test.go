package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bistroJob = `
name: bistro-launch
mission: Summer terrace campaign
agents: [strategist, " writer ", "", publisher]
config:
  global_mission:
    objective: Fill the terrace every evening in July
    timeline: 6 weeks
  business_profile:
    name: Le Petit Bistro
    sector: restaurant
    location: Lyon
  goals:
    primary_goal: bookings
    target_volume: 50
    budget: 800
  preferences:
    tone: warm
  role_overrides:
    writer: Write three Instagram captions.
`

func TestParseJob(t *testing.T) {
	job, err := parseJob([]byte(bistroJob))
	require.NoError(t, err)

	assert.Equal(t, "bistro-launch", job.Name)
	assert.Equal(t, "Summer terrace campaign", job.Mission)
	assert.Equal(t, []string{"strategist", "writer", "publisher"}, job.Agents)

	require.NotNil(t, job.Config.GlobalMission)
	assert.Equal(t, "Fill the terrace every evening in July", job.Config.MissionSummary())
	require.NotNil(t, job.Config.BusinessProfile)
	assert.Equal(t, "Lyon", job.Config.BusinessProfile.Location)
	require.NotNil(t, job.Config.Goals)
	assert.Equal(t, "50", job.Config.Goals.TargetVolume, "numeric scalars decode as text")
	assert.Equal(t, "800", job.Config.Goals.Budget)
	assert.Equal(t, "Write three Instagram captions.", job.Config.RoleOverrides["writer"])
}

func TestParseJob_RequiresAgents(t *testing.T) {
	_, err := parseJob([]byte("mission: nothing to do\nagents: []\n"))
	assert.ErrorIs(t, err, errNoAgents)

	_, err = parseJob([]byte("mission: blanks only\nagents: [\" \", \"\"]\n"))
	assert.ErrorIs(t, err, errNoAgents)
}

func TestParseJob_InvalidYAML(t *testing.T) {
	_, err := parseJob([]byte("agents: [unterminated"))
	assert.Error(t, err)
}

func TestLoadJob_NameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spring-promo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents: [writer]\n"), 0644))

	job, err := loadJob(path)
	require.NoError(t, err)
	assert.Equal(t, "spring-promo", job.Name)
	assert.Nil(t, job.Config.GlobalMission)
}

func TestSplitAgents(t *testing.T) {
	assert.Equal(t, []string{"strategist", "writer"}, splitAgents(" strategist, ,writer,"))
	assert.Nil(t, splitAgents(""))
}

func TestIsJobFile(t *testing.T) {
	assert.True(t, isJobFile("a.yaml"))
	assert.True(t, isJobFile("dir/B.YML"))
	assert.False(t, isJobFile("notes.txt"))
	assert.False(t, isJobFile("done"))
}
