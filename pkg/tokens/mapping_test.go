package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromMapRejectsUnknownKey(t *testing.T) {
	_, err := FromMap(map[string]any{"bogus": "x"})
	assert.Error(t, err)
}

func TestFromMapRoundTripsParams(t *testing.T) {
	body := map[string]any{
		"cmd":               "run.sh",
		"cpus":               float64(1.5),
		"mem":                float64(1024),
		"ports":              []any{float64(80), float64(443)},
		"health-check-url":   "/healthz",
		"authentication":     "disabled",
		"permitted-user":     "*",
		"interstitial-secs":  float64(30),
		"extra":              map[string]any{"team": "payments"},
		"owner":              "payments",
	}
	r, err := FromMap(body)
	assert.NoError(t, err)
	assert.Equal(t, "run.sh", r.Params.Cmd)
	assert.Equal(t, 1.5, r.Params.Cpus)
	assert.Equal(t, int64(1024), r.Params.Mem)
	assert.Equal(t, []int{80, 443}, r.Params.Ports)
	assert.Equal(t, "disabled", r.Params.Authentication)
	assert.Equal(t, "payments", r.Metadata.Owner)
	assert.Equal(t, "payments", r.Params.Extra["team"])
}

func TestFromMapRejectsOversizedExtra(t *testing.T) {
	extra := map[string]any{}
	for i := 0; i < MaxExtraKeys+1; i++ {
		extra[string(rune('a'+i))] = "v"
	}
	_, err := FromMap(map[string]any{"extra": extra})
	assert.Error(t, err)
}

func TestFromMapRejectsNonStringExtraValue(t *testing.T) {
	_, err := FromMap(map[string]any{"extra": map[string]any{"k": float64(1)}})
	assert.Error(t, err)
}

func TestToMapOmitsMetadataUnlessRequested(t *testing.T) {
	r := Record{
		Params:   Params{Cmd: "run.sh"},
		Metadata: Metadata{Owner: "x", LastUpdateUser: "alice"},
	}

	plain := ToMap(r, false)
	_, hasLastUpdateUser := plain["last-update-user"]
	assert.False(t, hasLastUpdateUser)

	withMeta := ToMap(r, true)
	assert.Equal(t, "alice", withMeta["last-update-user"])
	assert.NotEmpty(t, withMeta["etag"])
}

func TestToMapFromMapRoundTrip(t *testing.T) {
	r := Record{
		Params:   Params{Cmd: "run.sh", Cpus: 2, Mem: 2048, Ports: []int{8080}},
		Metadata: Metadata{Owner: "team-a"},
	}
	m := ToMap(r, false)
	got, err := FromMap(m)
	assert.NoError(t, err)
	assert.True(t, SameEditable(r, got))
}
