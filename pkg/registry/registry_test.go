// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topics.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleRegistry = `{
  "version": "1.0.0",
  "lastUpdated": "2026-01-15T00:00:00Z",
  "topics": [
    {
      "id": "quote-published",
      "displayName": "Quote Published",
      "description": "A quote was published for a party; submit a screening request.",
      "category": "trigger",
      "topic": "screening.quote-published",
      "enabled": true,
      "inputSchema": {
        "type": "object",
        "required": ["tenantId", "partyId"],
        "properties": {
          "tenantId": {"type": "string", "minLength": 1},
          "partyId": {"type": "string", "minLength": 1}
        }
      },
      "timeout": "30s",
      "maxJobsActive": 4
    },
    {
      "id": "party-closed",
      "displayName": "Party Closed",
      "description": "Retire every live screening request for the party.",
      "category": "lifecycle",
      "topic": "screening.party-closed",
      "enabled": false,
      "inputSchema": {},
      "timeout": "bogus",
      "maxJobsActive": 2
    }
  ]
}`

func TestLoadRegistry(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, reg.Topics, 2)

	entry := reg.FindByTopic("screening.quote-published")
	require.NotNil(t, entry)
	assert.Equal(t, "quote-published", entry.ID)
	assert.Nil(t, reg.FindByTopic("screening.unknown"))
}

func TestLoadRegistry_RejectsBadTopicNames(t *testing.T) {
	path := writeRegistry(t, `{"version":"1","topics":[{"id":"x","topic":"NotATopic","timeout":"30s"}]}`)

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain.event-name")
}

func TestEnabledTopics(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"screening.quote-published"}, reg.EnabledTopics())
}

func TestValidateMessage(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	entry := reg.FindByTopic("screening.quote-published")

	result, err := entry.ValidateMessage(map[string]interface{}{
		"tenantId": "tenant-1",
		"partyId":  "party-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = entry.ValidateMessage(map[string]interface{}{"tenantId": "tenant-1"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("(root)"))
}

func TestValidateMessage_EmptySchemaAcceptsAnything(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	entry := reg.FindByTopic("screening.party-closed")

	result, err := entry.ValidateMessage(map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestTimeoutDuration_FallsBackOnGarbage(t *testing.T) {
	path := writeRegistry(t, sampleRegistry)
	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, "30s", reg.FindByTopic("screening.quote-published").TimeoutDuration().String())
	assert.Equal(t, "30s", reg.FindByTopic("screening.party-closed").TimeoutDuration().String())
}
