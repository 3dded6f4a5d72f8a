// Package storetest holds the behavioral checks every storage.TrialStore
// implementation must pass.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/voice_metrics/internal/app/domain/trial"
	"github.com/R3E-Network/voice_metrics/internal/app/storage"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) storage.TrialStore

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// Fixture builds a valid trial offset by minutes from a fixed base time.
func Fixture(person string, src trial.Source, cmd trial.Command, responseTime float64, minutes int) trial.Trial {
	return trial.Trial{
		Person:       person,
		Source:       src,
		Command:      cmd,
		ResponseTime: responseTime,
		Accuracy:     responseTime / 1000,
		ErrorRate:    1 - responseTime/1000,
		Timestamp:    base.Add(time.Duration(minutes) * time.Minute),
	}
}

// Run exercises the TrialStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAssignsIDAndDefaults", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		created, err := st.CreateTrial(ctx, trial.Trial{Person: "1", Source: trial.SourceWebkit, ResponseTime: 10})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, trial.CommandUnknown, created.Command)
		assert.WithinDuration(t, time.Now(), created.Timestamp, time.Minute)

		list, err := st.ListTrials(ctx, trial.Query{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, created.ID, list[0].ID)
		assert.Equal(t, "1", list[0].Person)
		assert.Equal(t, 10.0, list[0].ResponseTime)
		assert.True(t, created.Timestamp.Equal(list[0].Timestamp))
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		_, err := st.CreateTrial(ctx, trial.Trial{Person: "1", Source: "foo"})
		require.Error(t, err)
		_, err = st.CreateTrial(ctx, trial.Trial{Person: "1", Source: trial.SourceONNX, Command: "jump"})
		require.Error(t, err)
		_, err = st.CreateTrial(ctx, trial.Trial{Source: trial.SourceONNX})
		require.Error(t, err)
		_, err = st.CreateTrial(ctx, trial.Trial{Person: "1", Source: trial.SourceONNX, ResponseTime: math.NaN()})
		require.Error(t, err)
		_, err = st.CreateTrial(ctx, trial.Trial{Person: "1", Source: trial.SourceONNX, Accuracy: math.Inf(1)})
		require.Error(t, err)

		n, err := st.CountTrials(ctx, trial.Filter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ListOrdersAndPaginates", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		for i := 0; i < 25; i++ {
			_, err := st.CreateTrial(ctx, Fixture("1", trial.SourceWebkit, "night", float64(100+i), i))
			require.NoError(t, err)
		}

		page, err := st.ListTrials(ctx, trial.Query{Sort: trial.SortTimestampDesc, Skip: 10, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 10)
		// newest is minute 24, so the second page starts at minute 14
		assert.True(t, page[0].Timestamp.Equal(base.Add(14*time.Minute)))
		assert.True(t, page[9].Timestamp.Equal(base.Add(5*time.Minute)))

		tail, err := st.ListTrials(ctx, trial.Query{Skip: 20, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, tail, 5)

		past, err := st.ListTrials(ctx, trial.Query{Skip: 40, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, past)
	})

	t.Run("ListFiltersAndSortsByResponseTime", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		for i, rt := range []float64{100, 200, 150, 50, 300} {
			_, err := st.CreateTrial(ctx, Fixture("a", trial.SourceWebkit, "red", rt, i))
			require.NoError(t, err)
		}
		_, err := st.CreateTrial(ctx, Fixture("b", trial.SourceONNX, "red", 10, 9))
		require.NoError(t, err)

		person := "a"
		list, err := st.ListTrials(ctx, trial.Query{Filter: trial.Filter{Person: &person}, Sort: trial.SortResponseTimeAsc, Limit: 3})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []float64{50, 100, 150}, []float64{list[0].ResponseTime, list[1].ResponseTime, list[2].ResponseTime})

		onnx := trial.SourceONNX
		n, err := st.CountTrials(ctx, trial.Filter{Source: &onnx})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = st.CountTrials(ctx, trial.Filter{Person: &person, Source: &onnx})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("TimestampTiesFallBackToInsertionOrder", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		first, err := st.CreateTrial(ctx, Fixture("1", trial.SourceONNX, "undo", 5, 0))
		require.NoError(t, err)
		second, err := st.CreateTrial(ctx, Fixture("1", trial.SourceONNX, "undo", 5, 0))
		require.NoError(t, err)

		newest, err := st.ListTrials(ctx, trial.Query{Sort: trial.SortTimestampDesc})
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, second.ID, newest[0].ID)

		fastest, err := st.ListTrials(ctx, trial.Query{Sort: trial.SortResponseTimeAsc})
		require.NoError(t, err)
		require.Len(t, fastest, 2)
		assert.Equal(t, first.ID, fastest[0].ID)
	})

	t.Run("TimestampsRoundTripOutsideNanosecondRange", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		stamps := []time.Time{
			time.Date(1500, 6, 1, 12, 0, 0, 0, time.UTC),
			time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC),
			base,
		}
		for i, ts := range stamps {
			tr := Fixture("1", trial.SourceONNX, "red", float64(i+1), 0)
			tr.Timestamp = ts
			created, err := st.CreateTrial(ctx, tr)
			require.NoError(t, err)
			assert.True(t, ts.Equal(created.Timestamp), "created %s", created.Timestamp)
		}

		list, err := st.ListTrials(ctx, trial.Query{Sort: trial.SortTimestampDesc})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.True(t, stamps[1].Equal(list[0].Timestamp), "newest %s", list[0].Timestamp)
		assert.True(t, stamps[2].Equal(list[1].Timestamp), "middle %s", list[1].Timestamp)
		assert.True(t, stamps[0].Equal(list[2].Timestamp), "oldest %s", list[2].Timestamp)
	})

	t.Run("CountByCommand", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		cmds := []trial.Command{"night", "night", "night", "red", "red", "undo", ""}
		for i, c := range cmds {
			_, err := st.CreateTrial(ctx, Fixture("1", trial.SourceWebkit, c, 10, i))
			require.NoError(t, err)
		}

		groups, err := st.CountByCommand(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 4)
		assert.Equal(t, trial.CommandCount{Command: "night", Count: 3}, groups[0])
		assert.Equal(t, trial.CommandCount{Command: "red", Count: 2}, groups[1])
		// "undo" and "unknown" tie; any order is acceptable
		tail := map[string]int{groups[2].Command: groups[2].Count, groups[3].Command: groups[3].Count}
		assert.Equal(t, map[string]int{"undo": 1, "unknown": 1}, tail)

		total := 0
		for _, g := range groups {
			total += g.Count
		}
		assert.Equal(t, len(cmds), total)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := st.CreateTrial(ctx, Fixture("p", trial.SourceWebkit, "five", 1, i))
			require.NoError(t, err)
		}

		removed, err := st.DeleteAllTrials(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		n, err := st.CountTrials(ctx, trial.Filter{})
		require.NoError(t, err)
		assert.Zero(t, n)

		groups, err := st.CountByCommand(ctx)
		require.NoError(t, err)
		assert.Empty(t, groups)
	})
}
