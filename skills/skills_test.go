package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_ReturnsSkills(t *testing.T) {
	result := All(nil, t.TempDir())

	assert.NotEmpty(t, result, "should return skills")

	names := make([]string, len(result))
	for i, s := range result {
		names[i] = s.Metadata().Name
	}

	assert.Contains(t, names, "retrieval", "should have retrieval skill")
	assert.Contains(t, names, "browser", "should have browser skill")
}

func TestAll_SkillsHaveMetadata(t *testing.T) {
	result := All(nil, t.TempDir())

	for _, skill := range result {
		meta := skill.Metadata()

		assert.NotEmpty(t, meta.Name, "skill should have name")
		assert.NotEmpty(t, meta.Description, "skill should have description")
		assert.NotEmpty(t, meta.Triggers, "skill should have triggers")
	}
}

func TestAll_NoDuplicateNames(t *testing.T) {
	result := All(nil, t.TempDir())

	seen := make(map[string]bool)
	for _, skill := range result {
		name := skill.Metadata().Name
		assert.False(t, seen[name], "duplicate skill name: %s", name)
		seen[name] = true
	}
}

func TestAll_SkillCount(t *testing.T) {
	result := All(nil, t.TempDir())
	assert.Len(t, result, 2)
}

func TestRetrieval_CanHandleFalseWithoutEngine(t *testing.T) {
	skill := Retrieval(nil)
	require.Equal(t, "retrieval", skill.Metadata().Name)

	can, confidence := skill.CanHandle(nil, nil, nil)
	assert.False(t, can)
	assert.Zero(t, confidence)
}

func TestBrowser_Metadata(t *testing.T) {
	skill := Browser(t.TempDir())
	meta := skill.Metadata()
	assert.Equal(t, "browser", meta.Name)
	assert.Contains(t, meta.RequiredTools, "chromedp")
}
