package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rendimo/server/internal/models"
)

type MockEstimator struct {
	mock.Mock
}

func (m *MockEstimator) Estimate(ctx context.Context, q models.PlaceQuery) models.PriceEstimate {
	args := m.Called(ctx, q)
	return args.Get(0).(models.PriceEstimate)
}

func TestReadPlaces(t *testing.T) {
	input := `# major cities
Rennes,35000

Lyon
  Saint-Malo , 35400
`

	places, err := readPlaces(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []models.PlaceQuery{
		{Name: "Rennes", PostalCode: "35000"},
		{Name: "Lyon"},
		{Name: "Saint-Malo", PostalCode: "35400"},
	}, places)
}

func TestWarm(t *testing.T) {
	est := new(MockEstimator)
	est.On("Estimate", mock.Anything, models.PlaceQuery{Name: "Rennes", Category: models.CategoryFlat}).
		Return(models.PriceEstimate{SourceLabel: models.SourceLive})
	est.On("Estimate", mock.Anything, models.PlaceQuery{Name: "Rennes", Category: models.CategoryHouse}).
		Return(models.PriceEstimate{SourceLabel: models.SourceReference})
	est.On("Estimate", mock.Anything, models.PlaceQuery{Name: "Brest", Category: models.CategoryFlat}).
		Return(models.PriceEstimate{SourceLabel: models.SourceAggregate})
	est.On("Estimate", mock.Anything, models.PlaceQuery{Name: "Brest", Category: models.CategoryHouse}).
		Return(models.PriceEstimate{SourceLabel: models.SourceReference})

	var out bytes.Buffer
	err := warm(context.Background(), est, []models.PlaceQuery{{Name: "Rennes"}, {Name: "Brest"}},
		[]string{"flat", "maison"}, &out)

	require.NoError(t, err)
	est.AssertNumberOfCalls(t, "Estimate", 4)
	assert.Contains(t, out.String(), "Warmed 4 estimates: 1 live, 1 aggregate, 2 reference")
}

func TestWarmStopsOnCancel(t *testing.T) {
	est := new(MockEstimator)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := warm(ctx, est, []models.PlaceQuery{{Name: "Rennes"}}, []string{"flat"}, &bytes.Buffer{})

	assert.ErrorIs(t, err, context.Canceled)
	est.AssertNotCalled(t, "Estimate", mock.Anything, mock.Anything)
}
