package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
)

type echoService struct {
	port.CacheService
	got []byte
}

func (s *echoService) Set(_ context.Context, _ string, value []byte, _ time.Duration) (uint64, error) {
	s.got = value
	return 1, nil
}

func TestTransport_UnregisteredNodeIsUnavailable(t *testing.T) {
	tr := NewTransport()
	svc := &echoService{}
	tr.Register("A", svc)
	client := tr.Client()
	target := hashring.Node{ID: "A", Addr: "a:7000"}

	value := []byte("v")
	_, err := client.Set(context.Background(), target, "k", value, 0)
	require.NoError(t, err)
	value[0] = 'x'
	assert.Equal(t, []byte("v"), svc.got, "values are copied across the transport")
	assert.Equal(t, 1, tr.Calls("Set"))

	tr.Unregister("A")
	_, err = client.Set(context.Background(), target, "k", value, 0)
	assert.ErrorIs(t, err, domain.ErrNodeUnavailable)
}

func TestTransport_CanceledContext(t *testing.T) {
	tr := NewTransport()
	tr.Register("A", &echoService{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Client().Set(ctx, hashring.Node{ID: "A"}, "k", nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, tr.Calls("Set"))
}
