package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom() *Room {
	return &Room{
		ID:       "testroom1234",
		mapState: make(map[string]Object),
	}
}

func TestApplyMapDeltaCreatesNewObjectWithDefaults(t *testing.T) {
	r := newTestRoom()

	delta, err := r.applyMapDelta(map[string]Object{
		"a": {"type": "token", "path": "a.png"},
	})
	require.NoError(t, err)

	assert.Equal(t, "token", r.mapState["a"]["type"])
	assert.Equal(t, "a.png", r.mapState["a"]["path"])
	assert.Equal(t, []float64{0.0, 0.0}, r.mapState["a"]["pos"])
	assert.Equal(t, 1.0, r.mapState["a"]["scale"])
	assert.Equal(t, r.mapState["a"], delta["a"])
}

func TestApplyMapDeltaNewObjectMissingTypeFails(t *testing.T) {
	r := newTestRoom()
	_, err := r.applyMapDelta(map[string]Object{
		"a": {"path": "a.png"},
	})
	assert.Error(t, err)
}

func TestApplyMapDeltaNewObjectMissingPathFails(t *testing.T) {
	r := newTestRoom()
	_, err := r.applyMapDelta(map[string]Object{
		"a": {"type": "token"},
	})
	assert.Error(t, err)
}

func TestApplyMapDeltaBackgroundRequiresPath(t *testing.T) {
	r := newTestRoom()
	_, err := r.applyMapDelta(map[string]Object{
		"background": {},
	})
	assert.Error(t, err)
}

func TestApplyMapDeltaBackgroundSetsOnlyPath(t *testing.T) {
	r := newTestRoom()
	delta, err := r.applyMapDelta(map[string]Object{
		"background": {"path": "table.png", "ignored": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{"path": "table.png"}, r.mapState["background"])
	assert.Equal(t, Object{"path": "table.png"}, delta["background"])
}

func TestApplyMapDeltaEmptyAbsentIdIsIgnored(t *testing.T) {
	r := newTestRoom()
	delta, err := r.applyMapDelta(map[string]Object{
		"ghost": {},
	})
	require.NoError(t, err)
	assert.Empty(t, delta)
	assert.NotContains(t, r.mapState, "ghost")
}

func TestApplyMapDeltaEmptyPresentIdDeletes(t *testing.T) {
	r := newTestRoom()
	r.mapState["a"] = Object{"type": "token", "path": "a.png"}

	delta, err := r.applyMapDelta(map[string]Object{
		"a": {},
	})
	require.NoError(t, err)
	assert.NotContains(t, r.mapState, "a")
	assert.Equal(t, Object{}, delta["a"])
}

func TestApplyMapDeltaUpdatesOnlyRecognizedFields(t *testing.T) {
	r := newTestRoom()
	r.mapState["a"] = Object{"type": "token", "path": "a.png", "pos": []float64{0, 0}, "scale": 1.0}

	delta, err := r.applyMapDelta(map[string]Object{
		"a": {"scale": 2.5, "unrecognized": "nope"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, r.mapState["a"]["scale"])
	assert.Equal(t, Object{"scale": 2.5}, delta["a"])
}

func TestApplyMapDeltaUpdateWithNothingAcceptedOmitsFromDelta(t *testing.T) {
	r := newTestRoom()
	r.mapState["a"] = Object{"type": "token", "path": "a.png"}

	delta, err := r.applyMapDelta(map[string]Object{
		"a": {"unrecognized": "nope"},
	})
	require.NoError(t, err)
	assert.NotContains(t, delta, "a")
}

func TestApplyMapDeltaRejectsMalformedPos(t *testing.T) {
	r := newTestRoom()
	r.mapState["a"] = Object{"type": "token", "path": "a.png"}

	delta, err := r.applyMapDelta(map[string]Object{
		"a": {"pos": "not-a-pair"},
	})
	require.NoError(t, err)
	assert.NotContains(t, delta, "a")
	assert.NotContains(t, r.mapState["a"], "pos")
}
