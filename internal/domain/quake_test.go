package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRegion(t *testing.T) {
	tests := []struct {
		name  string
		place string
		want  string
	}{
		{"after last comma", "10km SE of Example, Country", "Country"},
		{"multiple commas", "near Town, State, Country", "Country"},
		{"of form no comma", "South of the Fiji Islands", "the Fiji Islands"},
		{"of case insensitive", "100 km NNE OF Severo-Kuril'sk", "Severo-Kuril'sk"},
		{"plain string", "  Example Ridge  ", "Example Ridge"},
		{"empty", "", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRegion(tt.place))
		})
	}
}

func TestQuake_JSONShape(t *testing.T) {
	mag := 5.2
	q := Quake{
		ID:     "us7000abcd",
		Mag:    &mag,
		Place:  "10km SE of Example, Country",
		Region: "Country",
		Lat:    1.5,
		Lon:    2.5,
		TS:     1700000000000,
	}

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "us7000abcd", got["id"])
	assert.Equal(t, 5.2, got["mag"])
	assert.Equal(t, float64(1700000000000), got["ts"])

	// A missing magnitude must serialize as an explicit null, not be omitted.
	q.Mag = nil
	data, err = json.Marshal(q)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mag":null`)
}
