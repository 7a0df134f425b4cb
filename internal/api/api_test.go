package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableResult_EncodesEmptyLists(t *testing.T) {
	b, err := json.Marshal(NewTableResult())
	require.NoError(t, err)

	assert.JSONEq(t, `{"pushed":0,"deleted":0,"pulled":[],"deletedIds":[],"pushedIds":[],
		"failedPushIds":[],"acknowledgedDeletions":[],"rejectedIds":[]}`, string(b))
}

func TestChangeSet_WatermarkOmittedWhenNil(t *testing.T) {
	cs := ChangeSet{Table: "products", Records: []json.RawMessage{json.RawMessage(`{"id":"P1"}`)}, Deletions: []string{}}
	b, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"table":"products","records":[{"id":"P1"}],"deletions":[]}`, string(b))

	wm := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cs.LastSyncedAt = &wm
	b, err = json.Marshal(cs)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"lastSyncedAt":"2024-01-01T00:00:00Z"`)
}

func TestSyncResponse_DecodesWireExample(t *testing.T) {
	body := `{"success":true,"results":{"products":{"pushed":1,"deleted":0,
		"pulled":[{"id":"P1","name":"Rice","price":1000,"syncStatus":"synced"}],
		"deletedIds":[],"pushedIds":["P1"],"failedPushIds":[]}}}`

	var resp SyncResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.True(t, resp.Success)

	res := resp.Results["products"]
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, []string{"P1"}, res.PushedIDs)
	require.Len(t, res.Pulled, 1)
	assert.Equal(t, "Rice", res.Pulled[0].Field("name"))
	assert.Nil(t, res.SyncedAt)
	assert.Nil(t, res.AcknowledgedDeletions)
}
