package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufscache/internal/errs"
	"ufscache/pkg/worker"
)

func TestDecodeWorkerInfo_Defaults(t *testing.T) {
	c := New(nil, 0, "", nil)

	t.Run("fills in documented defaults for omitted fields", func(t *testing.T) {
		raw := []byte(`{"Identity":{"version":1,"identifier":"00112233445566778899aabbccddeeff"},"WorkerNetAddress":{"Host":"10.0.0.1"}}`)
		e, err := c.decodeWorkerInfo(raw)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", e.Address.Host)
		assert.Equal(t, worker.DefaultHTTPServerPort, e.Address.HTTPServerPort)
		assert.Equal(t, worker.DefaultRPCPort, e.Address.RPCPort)
	})

	t.Run("honors every overridden field", func(t *testing.T) {
		raw := []byte(`{"Identity":{"version":1,"identifier":"00112233445566778899aabbccddeeff"},"WorkerNetAddress":{"Host":"10.0.0.2","HttpServerPort":9000}}`)
		e, err := c.decodeWorkerInfo(raw)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", e.Address.Host)
		assert.Equal(t, 9000, e.Address.HTTPServerPort)
	})

	t.Run("rejects a document missing the identifier", func(t *testing.T) {
		raw := []byte(`{"Identity":{"version":1},"WorkerNetAddress":{}}`)
		_, err := c.decodeWorkerInfo(raw)
		assert.ErrorIs(t, err, errs.ErrWorkerInfoParse)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := c.decodeWorkerInfo([]byte(`not json`))
		assert.ErrorIs(t, err, errs.ErrWorkerInfoParse)
	})
}

func TestFetch_AllEndpointsUnreachable(t *testing.T) {
	c := New([]string{"127.0.0.1:1"}, 12345, "TestCluster", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRegistryUnavailable)
}

func TestFetch_NoHostsConfigured(t *testing.T) {
	c := New(nil, 2379, "TestCluster", nil)
	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, errs.ErrConfig)
}
