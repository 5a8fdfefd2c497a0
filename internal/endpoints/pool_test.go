package endpoints_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/optract/optract/internal/chain/mocks"
	"github.com/optract/optract/internal/endpoints"
	"github.com/optract/optract/libs/log"
)

const (
	endpointA = "http://a.example:8545"
	endpointB = "http://b.example:8545"
	endpointC = "http://c.example:8545"
)

func TestRotateRemovesFailingEndpoint(t *testing.T) {
	ctx := context.Background()
	client := &mocks.Query{}
	active := endpointA
	client.On("Endpoint").Return(func() string { return active })
	client.On("SwitchEndpoint", mock.Anything, endpointB).Return(errors.New("dial failed")).Once()
	client.On("SwitchEndpoint", mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { active = args.String(1) }).
		Return(nil)

	pool := endpoints.NewPool(log.NewTestingLogger(t), client,
		map[string][]string{"4": {endpointA, endpointB, endpointC}},
		endpoints.WithRandIntn(func(int) int { return 0 }),
	)

	// B is picked first, fails and is dropped; A stays active
	pool.Rotate(ctx, "4")
	require.Equal(t, endpointA, active)
	require.Equal(t, []string{endpointA, endpointC}, pool.Endpoints("4"))

	pool.Rotate(ctx, "4")
	require.Equal(t, endpointC, active)

	pool.Rotate(ctx, "4")
	require.Equal(t, endpointA, active)
	require.Equal(t, []string{endpointA, endpointC}, pool.Endpoints("4"))

	client.AssertNumberOfCalls(t, "SwitchEndpoint", 3)
}

func TestRotateNeverPicksActive(t *testing.T) {
	ctx := context.Background()
	client := &mocks.Query{}
	active := endpointB
	client.On("Endpoint").Return(func() string { return active })
	client.On("SwitchEndpoint", mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			require.NotEqual(t, active, args.String(1))
			active = args.String(1)
		}).
		Return(nil)

	pool := endpoints.NewPool(log.NewNopLogger(), client,
		map[string][]string{"4": {endpointA, endpointB, endpointC}})
	for i := 0; i < 50; i++ {
		pool.Rotate(ctx, "4")
	}
	require.Len(t, pool.Endpoints("4"), 3)
}

func TestRotateSingleAndEmpty(t *testing.T) {
	ctx := context.Background()
	client := &mocks.Query{}
	client.On("Endpoint").Return(endpointA)
	client.On("SwitchEndpoint", mock.Anything, endpointA).Return(errors.New("down")).Once()

	pool := endpoints.NewPool(log.NewNopLogger(), client,
		map[string][]string{"4": {endpointA}})

	pool.Rotate(ctx, "4")
	require.Empty(t, pool.Endpoints("4"))

	// nothing left and an unknown network: both are no-ops
	pool.Rotate(ctx, "4")
	pool.Rotate(ctx, "1")
	client.AssertNumberOfCalls(t, "SwitchEndpoint", 1)
}
