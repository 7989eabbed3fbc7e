package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func TestEnsureSchema_AppliesEveryStatement(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, EnsureSchema(context.Background(), db))
	db.AssertNumberOfCalls(t, "Exec", len(Schema))
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied")).Once()

	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	db.AssertNumberOfCalls(t, "Exec", 1)
}

func TestBlobCodec_RoundTripsFeatureSet(t *testing.T) {
	c := newBlobCodec()
	skew := -0.25
	in := types.FeatureSet{
		Mean: 1.5, Min: 1, Max: 2, Variance: 0.25, StdDev: 0.5, Skewness: &skew,
		Trend:       types.Trend{Direction: types.TrendIncreasing, PercentChange: 12.5},
		SampleCount: 42,
	}

	blob, err := c.encode(in)
	require.NoError(t, err)

	var out types.FeatureSet
	require.NoError(t, c.decode(blob, &out))
	assert.Equal(t, in, out)

	assert.Error(t, c.decode([]byte("not zstd"), &out))
}
