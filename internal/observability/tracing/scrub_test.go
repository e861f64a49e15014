package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSensitive(t *testing.T) {
	scrubber := NewScrubber([]string{"access_token", "api_key", "secret"})

	tests := []struct {
		key       string
		sensitive bool
	}{
		{key: "access_token", sensitive: true},
		{key: "ACCESS_TOKEN", sensitive: true},
		{key: "square_access_token", sensitive: true},
		{key: "api_key", sensitive: true},
		{key: "client_secret_rotation", sensitive: true},
		{key: "merchant_id", sensitive: false},
		{key: "object_count", sensitive: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.sensitive, scrubber.IsSensitive(tt.key))
		})
	}
}

func TestScrubMapRedactsNestedFields(t *testing.T) {
	scrubber := NewScrubber([]string{"access_token", "password"})

	input := map[string]any{
		"merchant_id":  "M123",
		"access_token": "sq0atp-secret",
		"request": map[string]any{
			"password": "hunter2",
			"count":    3,
		},
		"batch": []any{
			map[string]any{"access_token": "another"},
			"plain",
		},
	}

	scrubbed := scrubber.ScrubMap(input)

	assert.Equal(t, "M123", scrubbed["merchant_id"])
	assert.Equal(t, RedactionMarker, scrubbed["access_token"])

	nested := scrubbed["request"].(map[string]any)
	assert.Equal(t, RedactionMarker, nested["password"])
	assert.Equal(t, 3, nested["count"])

	batch := scrubbed["batch"].([]any)
	assert.Equal(t, RedactionMarker, batch[0].(map[string]any)["access_token"])
	assert.Equal(t, "plain", batch[1])
}

func TestScrubDoesNotMutateInput(t *testing.T) {
	scrubber := NewScrubber([]string{"secret"})
	input := map[string]any{"secret": "original"}

	_ = scrubber.ScrubMap(input)

	assert.Equal(t, "original", input["secret"])
}

func TestScrubStringMap(t *testing.T) {
	scrubber := NewScrubber([]string{"authorization"})

	out := scrubber.Scrub(map[string]string{
		"authorization": "Bearer abc",
		"path":          "/v2/catalog/info",
	}).(map[string]string)

	assert.Equal(t, RedactionMarker, out["authorization"])
	assert.Equal(t, "/v2/catalog/info", out["path"])
}

func TestScrubNilMap(t *testing.T) {
	scrubber := NewScrubber([]string{"secret"})
	assert.Nil(t, scrubber.ScrubMap(nil))
}
