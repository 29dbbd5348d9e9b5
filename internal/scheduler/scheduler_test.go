package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lynora/internal/config"
	"lynora/internal/db"
	"lynora/internal/engine"
	"lynora/internal/events"
	"lynora/internal/performance"
)

type countingPublisher struct {
	n    int
	fail bool
}

func (p *countingPublisher) Publish(context.Context, events.Event) error {
	if p.fail {
		return errors.New("unavailable")
	}
	p.n++
	return nil
}

func setup(t *testing.T, pub events.Publisher, logOut io.Writer) *Scheduler {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(database, engine.WithLogger(quiet))
	creator := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := e.CreateMarket(context.Background(), engine.Call{Caller: creator, Time: now}, engine.CreateParams{
			Question: "q", Symbol: "BTC", EndTime: now.Add(time.Hour), TargetPrice: 1,
		})
		require.NoError(t, err)
	}

	cfg := config.ScheduleConfig{
		RelayInterval:  config.Duration{Duration: 10 * time.Millisecond},
		ReportInterval: config.Duration{Duration: time.Hour},
	}
	return New(events.NewOutbox(database), pub, performance.NewTracker(database), 2,
		cfg, slog.New(slog.NewJSONHandler(logOut, nil)))
}

func TestRelayEvents_DrainsAllBatches(t *testing.T) {
	pub := &countingPublisher{}
	s := setup(t, pub, io.Discard)

	s.RelayEvents(context.Background())
	assert.Equal(t, 5, pub.n)

	s.RelayEvents(context.Background())
	assert.Equal(t, 5, pub.n)
}

func TestRelayEvents_StopsOnFailure(t *testing.T) {
	pub := &countingPublisher{fail: true}
	var buf bytes.Buffer
	s := setup(t, pub, &buf)

	s.RelayEvents(context.Background())
	assert.Zero(t, pub.n)
	assert.Contains(t, buf.String(), "event relay failed")
}

func TestRun_StopsOnCancel(t *testing.T) {
	pub := &countingPublisher{}
	var buf bytes.Buffer
	s := setup(t, pub, &buf)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, pub.n)
	assert.Contains(t, buf.String(), "MARKET REPORT")
}
