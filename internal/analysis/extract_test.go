package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const berlinReply = `{"location":{"city":"Berlin","country":"Germany","lat":52.52,"lng":13.405,"confidence":85},"analysis":{"description":"urban street scene","clues":["Bundesgasse street sign","Deutsche Bahn logo"],"reasoning":"Clear German signage and transit branding observed throughout the frame confirming location precisely"}}`

func TestExtractCleanReply(t *testing.T) {
	reply, err := Extract(berlinReply)
	require.NoError(t, err)

	assert.Equal(t, "Berlin", reply.Location.City)
	assert.Equal(t, "Germany", reply.Location.Country)
	assert.InDelta(t, 52.52, reply.Location.Lat, 1e-9)
	assert.InDelta(t, 13.405, reply.Location.Lng, 1e-9)
	assert.Equal(t, 85, reply.Location.ConfidenceRaw)
	assert.Equal(t, []string{"Bundesgasse street sign", "Deutsche Bahn logo"}, reply.Analysis.Clues)
	assert.Equal(t, "urban street scene", reply.Analysis.Description)
}

func TestExtractWrappedReplies(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"markdown fence", "```json\n" + berlinReply + "\n```"},
		{"bare fence", "```\n" + berlinReply + "\n```"},
		{"preamble and trailer", "Here is my analysis:\n" + berlinReply + "\nLet me know if you need more."},
		{
			"example object before the answer",
			`The format is {"example": true}. Answer: ` + berlinReply,
		},
		{
			"braces inside strings",
			`{"location":{"city":"Berlin {Mitte}","country":"Germany","lat":52.52,"lng":13.405,"confidence":85},"analysis":{"description":"a } brace","clues":[],"reasoning":"x"}}`,
		},
		{
			"trailing prose with stray brace",
			berlinReply + " (note: the } above closes the object)",
		},
		{
			"unclosed brace in prose before the answer",
			"I'd describe it as {unsure. Answer: " + berlinReply,
		},
		{
			"unclosed brace and stray quote before the answer",
			`Honestly {not "certain. Answer: ` + berlinReply,
		},
		{
			"prose braces around the answer",
			"{my best guess: " + berlinReply + " hope that helps}",
		},
		{
			"answer nested in a wrapper object",
			`{"result": ` + berlinReply + `}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := Extract(tt.text)
			require.NoError(t, err)
			assert.Equal(t, "Germany", reply.Location.Country)
		})
	}
}

func TestExtractConfidenceCoercion(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		want       int
	}{
		{"integer", `85`, 85},
		{"float rounds", `72.5`, 73},
		{"numeric string", `"64"`, 64},
		{"percent string", `"90%"`, 90},
		{"above range clamps", `150`, 100},
		{"negative clamps", `-5`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := `{"location":{"city":"A","country":"B","lat":1,"lng":2,"confidence":` + tt.confidence + `},"analysis":{}}`
			reply, err := Extract(text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Location.ConfidenceRaw)
		})
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "", ErrNoJSONFound},
		{"prose only", "I cannot determine where this photo was taken.", ErrNoJSONFound},
		{"unclosed object", `{"location": {"city": "Berlin"`, ErrNoJSONFound},
		{"only unclosed braces", `maybe {this and {that`, ErrNoJSONFound},
		{"malformed", `{"location": {city: Berlin}}`, ErrMalformedJSON},
		{"missing analysis", `{"location":{"city":"A","country":"B","lat":1,"lng":2,"confidence":50}}`, ErrMissingField},
		{"missing location", `{"analysis":{"description":"x","clues":[],"reasoning":"y"}}`, ErrMissingField},
		{"null location", `{"location":null,"analysis":{}}`, ErrMissingField},
		{"missing lat", `{"location":{"city":"A","country":"B","lng":2,"confidence":50},"analysis":{}}`, ErrMissingField},
		{"non numeric lng", `{"location":{"city":"A","country":"B","lat":1,"lng":"east","confidence":50},"analysis":{}}`, ErrMissingField},
		{"nan confidence", `{"location":{"city":"A","country":"B","lat":1,"lng":2,"confidence":"NaN"},"analysis":{}}`, ErrMissingField},
		{"wrong shape beats earlier syntax error", `{oops} then {"other": 1}`, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := Extract(tt.text)
			assert.Nil(t, reply)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no braces here", nil},
		{"single", `x {"a":1} y`, []string{`{"a":1}`}},
		{"nested counts once", `{"a":{"b":{}}}`, []string{`{"a":{"b":{}}}`}},
		{"two objects", `{"a":1} and {"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"escaped quote in string", `{"a":"say \"}\""}`, []string{`{"a":"say \"}\""}`}},
		{"stray close before open", `} {"a":1}`, []string{`{"a":1}`}},
		{"quote in prose", `it's "here": {"a":1}`, []string{`{"a":1}`}},
		{"unclosed", `{"a":1`, nil},
		{"unclosed before object", `{oops {"a":1}`, []string{`{"a":1}`}},
		{"two unclosed before object", `{ { x {"a":1}`, []string{`{"a":1}`}},
		{"unclosed with stray quote", `{it's "odd {"a":1}`, []string{`{"a":1}`}},
		{"object then unclosed", `{"a":1} {"b":`, []string{`{"a":1}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.text))
		})
	}
}
