package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.Nil(t, New(nil, time.Second), "no destinations, disabled notifier")
	assert.Nil(t, New([]string{}, time.Second))

	svc := New([]string{"mailto:ops@example.com"}, 0)
	require.NotNil(t, svc)
	assert.Equal(t, 10*time.Second, svc.Timeout, "default timeout applied")
}

func TestService_Send_NilReceiver(t *testing.T) {
	var svc *Service
	assert.NoError(t, svc.Send(context.Background(), "subj", "text"))
}

func TestService_Send_BadDestination(t *testing.T) {
	svc := New([]string{"bogus-scheme:whatever"}, time.Second)
	err := svc.Send(context.Background(), "swarm failed", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus-scheme:whatever")
}
