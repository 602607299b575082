package room

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dradu/server/internal/player"
	"dradu/server/internal/wire"
)

// TestDispatchFileNonMasterRequestForwardsToMaster covers the first half
// of spec.md §8 scenario 4: a non-master's path-only File request is
// recorded as pending and forwarded to the master with no body.
func TestDispatchFileNonMasterRequestForwardsToMaster(t *testing.T) {
	r := newTestRoom()
	masterServer, masterClient := net.Pipe()
	defer masterClient.Close()
	master := player.New(masterServer)
	requester := player.New(nil)
	r.master = master
	r.players = []*player.Player{master, requester}

	done := make(chan wire.Message, 1)
	go func() { done <- drainOne(t, masterClient) }()

	r.dispatchFile(requester, &wire.Message{Headers: map[string]string{"path": "map/a.png"}})

	forwarded := <-done
	assert.Equal(t, "File", forwarded.Type)
	assert.Equal(t, "map/a.png", forwarded.Headers["path"])
	assert.Empty(t, forwarded.Body)

	require.Len(t, r.fileRequests, 1)
	assert.Equal(t, "map/a.png", r.fileRequests[0].path)
	assert.Same(t, requester, r.fileRequests[0].requester)
}

// TestDispatchFileMasterReplyGoesOnlyToOriginalRequesters covers the
// second half of spec.md §8 scenario 4, including the multi-requester
// case against the same path that the in-place r.fileRequests filter
// (dispatch.go:87-98) has to keep straight without cross-delivering or
// dropping the unrelated pending request for a different path.
func TestDispatchFileMasterReplyGoesOnlyToOriginalRequesters(t *testing.T) {
	r := newTestRoom()
	masterServer, masterClient := net.Pipe()
	defer masterClient.Close()
	master := player.New(masterServer)

	req1Server, req1Client := net.Pipe()
	defer req1Client.Close()
	requester1 := player.New(req1Server)

	req2Server, req2Client := net.Pipe()
	defer req2Client.Close()
	requester2 := player.New(req2Server)

	bystanderServer, bystanderClient := net.Pipe()
	defer bystanderClient.Close()
	bystander := player.New(bystanderServer)

	r.master = master
	r.players = []*player.Player{master, requester1, requester2, bystander}
	r.fileRequests = []fileRequest{
		{path: "map/a.png", requester: requester1},
		{path: "map/b.png", requester: bystander},
		{path: "map/a.png", requester: requester2},
	}

	got1 := make(chan wire.Message, 1)
	go func() { got1 <- drainOne(t, req1Client) }()
	got2 := make(chan wire.Message, 1)
	go func() { got2 <- drainOne(t, req2Client) }()

	r.dispatchFile(master, &wire.Message{
		Headers: map[string]string{"path": "map/a.png"},
		Body:    []byte("binary-image-bytes"),
	})

	msg1 := <-got1
	assert.Equal(t, "File", msg1.Type)
	assert.Equal(t, "map/a.png", msg1.Headers["path"])
	assert.Equal(t, "image", msg1.Headers["contentType"])
	assert.Equal(t, []byte("binary-image-bytes"), msg1.Body)

	msg2 := <-got2
	assert.Equal(t, "File", msg2.Type)
	assert.Equal(t, "map/a.png", msg2.Headers["path"])
	assert.Equal(t, "image", msg2.Headers["contentType"])
	assert.Equal(t, []byte("binary-image-bytes"), msg2.Body)

	// The unrelated pending request for a different path survives the
	// in-place filter untouched.
	require.Len(t, r.fileRequests, 1)
	assert.Equal(t, "map/b.png", r.fileRequests[0].path)
	assert.Same(t, bystander, r.fileRequests[0].requester)
}
