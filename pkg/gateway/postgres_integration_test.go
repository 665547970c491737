//go:build integration

package gateway

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/vaccine-ingress/pkg/config"
	"github.com/David-Botos/vaccine-ingress/pkg/connector"
	"github.com/David-Botos/vaccine-ingress/pkg/querylog"
)

func startPostgres(t *testing.T) *config.PostgresConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "vacc",
			"POSTGRES_PASSWORD": "vacc",
			"POSTGRES_DB":       "vacc",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Skipping test: cannot start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return &config.PostgresConfig{
		Host:     host,
		Port:     portNum,
		User:     "vacc",
		Password: "vacc",
		Database: "vacc",
		SSLMode:  "disable",
	}
}

func TestPostgresGateway(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	conn, err := connector.NewPostgresConnector(ctx, startPostgres(t), logger)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Validate(ctx))

	log := querylog.NewCollector("integration")
	g := New(conn.DB(), conn.DriverName(), logger, Options{PersistEnrichment: true, ChunkSize: 2, Recorder: log})
	require.NoError(t, g.EnsureSchema(ctx))

	written, err := g.Append(ctx, sampleBatch(t))
	require.NoError(t, err)
	assert.Equal(t, int64(6), written)

	rows, err := g.QueryByISO(ctx, "ALB", day("2021-01-01"), day("2021-01-31"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2021-01-10", *rows[0].Date)

	count, err := g.CountCountriesUsingVaccine(ctx, "Pfizer")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	split, err := g.VaccineSplit(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, split)
	assert.Equal(t, "vaccine_Pfizer_BioNTech", split[0].Column)
	assert.Equal(t, int64(4), split[0].Rows)

	dist, err := g.SourceDistribution(ctx)
	require.NoError(t, err)
	assert.Len(t, dist, 2)

	assert.Contains(t, log.Entries()[len(log.Entries())-1].Query, "GROUP BY")
}
