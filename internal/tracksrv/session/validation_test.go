package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateActivity(t *testing.T) {
	valid := []string{
		"Implementierung der Auftragsmaske",
		"Kundentermin zur Anforderungsaufnahme",
		"Fehleranalyse im Rechnungslauf",
	}
	for _, activity := range valid {
		assert.NoError(t, validateActivity(activity), activity)
	}

	invalid := []string{
		"updated SessionTimer.tsx",
		"fixed handler.go",
		"refactored the Component tree",
		"new api route added",
		"rewrote index.html generation",
	}
	for _, activity := range invalid {
		assert.Error(t, validateActivity(activity), activity)
	}
}

func TestValidateMeta(t *testing.T) {
	valid := []string{
		"",
		`{}`,
		`{"branch":"main"}`,
		`{"reviewed":true,"estimate_h":2.5,"ticket":"ABC-42"}`,
	}
	for _, meta := range valid {
		assert.NoError(t, validateMeta(json.RawMessage(meta)), meta)
	}

	invalid := []string{
		`not json`,
		`[1,2,3]`,
		`"just a string"`,
		`{"nested":{"a":1}}`,
		`{"list":[1,2]}`,
		`{"key with spaces":"v"}`,
		`{"null_value":null}`,
	}
	for _, meta := range invalid {
		assert.Error(t, validateMeta(json.RawMessage(meta)), meta)
	}
}

func TestValidateMetaKeyBound(t *testing.T) {
	// Init in TestMain allows 16 keys.
	meta := map[string]string{}
	for i := 0; i < 17; i++ {
		meta[string(rune('a'+i))] = "v"
	}
	raw, err := json.Marshal(meta)
	assert.NoError(t, err)
	assert.Error(t, validateMeta(raw))
}

func TestValidateCompleteRequest(t *testing.T) {
	assert.NoError(t, ValidateCompleteRequest(&CompleteRequest{Lesson: "kürzere Iterationen"}))

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, ValidateCompleteRequest(&CompleteRequest{Cause: string(long)}))
}
