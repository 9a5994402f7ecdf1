package monitoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/monitoring"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyWithoutProbesIsUp(t *testing.T) {
	report := monitoring.NewHealth(0).Ready(context.Background())
	require.Equal(t, monitoring.StatusUp, report.Status)
	require.True(t, report.Healthy())
	require.Empty(t, report.Checks)
}

func TestReadyAggregatesProbes(t *testing.T) {
	health := monitoring.NewHealth(time.Second)
	health.AddReadiness("database", func(context.Context) error { return nil })
	health.AddReadiness("redis", func(context.Context) error { return errors.New("connection refused") })

	report := health.Ready(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.False(t, report.Healthy())
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, monitoring.StatusUp, report.Checks[0].Status)
	require.Equal(t, "connection refused", report.Checks[1].Details)
}

func TestOptionalProbeOnlyDegrades(t *testing.T) {
	health := monitoring.NewHealth(time.Second)
	health.AddReadiness("database", func(context.Context) error { return nil })
	health.AddOptional("smtp", func(context.Context) error { return errors.New("unreachable") })

	report := health.Ready(context.Background())
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.True(t, report.Healthy())
}

func TestProbeTimeoutDegrades(t *testing.T) {
	health := monitoring.NewHealth(10 * time.Millisecond)
	health.AddReadiness("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := health.Ready(context.Background())
	require.Equal(t, monitoring.StatusDegraded, report.Status)
}

func TestProbePanicIsReportedDown(t *testing.T) {
	health := monitoring.NewHealth(time.Second)
	health.AddLiveness("boom", func(context.Context) error { panic("broken") })

	report := health.Live(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Component)
	require.Contains(t, report.Checks[0].Details, "broken")
}

func TestDatabaseProbe(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	require.NoError(t, monitoring.DatabaseProbe(db)(context.Background()))
	require.Error(t, monitoring.DatabaseProbe(nil)(context.Background()))
}

func TestPingProbe(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	require.NoError(t, monitoring.PingProbe(ok)(context.Background()))
	require.Error(t, monitoring.PingProbe(nil)(context.Background()))
}
