//go:build integration

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/logger"
)

func TestMySQLIncidentRoundTrip(t *testing.T) {
	ctx := context.Background()

	ctr, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("yardwatch"),
		mysql.WithUsername("yardwatch"),
		mysql.WithPassword("yardwatch"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := Open(&conf.DatabaseSettings{
		Type: conf.DatabaseMySQL,
		MySQL: conf.MySQLConfig{
			Host: host, Port: port.Port(),
			Username: "yardwatch", Password: "yardwatch", Database: "yardwatch",
		},
	}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := seedFixture(t, store, ptr(75.0), nil, nil)
	frame := make([]byte, 256*1024)
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Incidents().Create(ctx, &Incident{
		RecordingID: f.recording.ID,
		ClassName:   "vest",
		Frame:       frame,
		Timestamp:   ts,
	}))

	got, found, err := store.Incidents().LatestTimestamp(ctx, f.recording.ID, "vest")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}
