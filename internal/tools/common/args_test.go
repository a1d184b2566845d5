package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommaList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single value", input: "a", expected: []string{"a"}},
		{name: "values with spaces", input: "a, b , c", expected: []string{"a", "b", "c"}},
		{name: "blank entries", input: "a,,b, ", expected: []string{"a", "b"}},
		{name: "empty string", input: "", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCommaList(tt.input))
		})
	}
}

func TestStringList(t *testing.T) {
	args := map[string]any{
		"csv":   "https://a, https://b",
		"array": []any{"https://a", 3, " ", "https://b"},
		"typed": []string{"x"},
		"other": 42,
	}

	assert.Equal(t, []string{"https://a", "https://b"}, StringList(args, "csv"))
	assert.Equal(t, []string{"https://a", "https://b"}, StringList(args, "array"))
	assert.Equal(t, []string{"x"}, StringList(args, "typed"))
	assert.Nil(t, StringList(args, "other"))
	assert.Nil(t, StringList(args, "missing"))
}

func TestStringValues(t *testing.T) {
	const dataURL = "data:image/png;base64,iVBORw0KGgo="
	args := map[string]any{
		"single": " " + dataURL + " ",
		"blank":  "  ",
		"array":  []any{dataURL, 3, "", "data:image/jpeg;base64,/9j/"},
		"typed":  []string{dataURL},
		"other":  42,
	}

	assert.Equal(t, []string{dataURL}, StringValues(args, "single"))
	assert.Nil(t, StringValues(args, "blank"))
	assert.Equal(t, []string{dataURL, "data:image/jpeg;base64,/9j/"}, StringValues(args, "array"))
	assert.Equal(t, []string{dataURL}, StringValues(args, "typed"))
	assert.Nil(t, StringValues(args, "other"))
	assert.Nil(t, StringValues(args, "missing"))

	// StringList would cut the data URL at its comma.
	assert.Equal(t, []string{"data:image/png;base64", "iVBORw0KGgo="}, StringList(args, "single"))
}
