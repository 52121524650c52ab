package blackout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

func TestResolve_AllDaySpanCoversWholeLocalDays(t *testing.T) {
	t.Parallel()

	start, end, err := Resolve(LocalSpan{
		StartDate: wallclock.NewDate(2024, time.January, 14),
		EndDate:   wallclock.NewDate(2024, time.January, 16),
	}, wallclock.MustOffset(-360))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.January, 14, 6, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.January, 17, 6, 0, 0, 0, time.UTC), end)
}

func TestResolve_TimedSpanIsContinuous(t *testing.T) {
	t.Parallel()

	from := wallclock.Clock{Hour: 12}
	to := wallclock.Clock{Hour: 9}
	start, end, err := Resolve(LocalSpan{
		StartDate: wallclock.NewDate(2024, time.May, 3),
		EndDate:   wallclock.NewDate(2024, time.May, 4),
		StartTime: &from,
		EndTime:   &to,
	}, wallclock.MustOffset(0))
	require.NoError(t, err)

	assert.Equal(t, 21*time.Hour, end.Sub(start))
}

func TestResolve_Rejections(t *testing.T) {
	t.Parallel()

	span := LocalSpan{StartDate: wallclock.NewDate(2024, time.May, 3), EndDate: wallclock.NewDate(2024, time.May, 2)}
	_, _, err := Resolve(span, wallclock.MustOffset(0))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	span.EndDate = span.StartDate
	_, _, err = Resolve(span, wallclock.Offset{})
	assert.ErrorIs(t, err, wallclock.ErrOffsetMissing)

	from := wallclock.Clock{Hour: 10}
	span.StartTime = &from
	_, _, err = Resolve(span, wallclock.MustOffset(0))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	span.EndTime = &from
	_, _, err = Resolve(span, wallclock.MustOffset(0))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestIndex_FindUsesHalfOpenIntervals(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	index := NewIndex([]Period{
		{ID: "b", StartsAt: base.Add(48 * time.Hour), EndsAt: base.Add(72 * time.Hour)},
		{ID: "a", StartsAt: base, EndsAt: base.Add(24 * time.Hour)},
	})
	require.Equal(t, 2, index.Len())

	p, ok := index.Find(base.Add(6*time.Hour), base.Add(10*time.Hour))
	require.True(t, ok)
	assert.Equal(t, "a", p.ID)

	_, ok = index.Find(base.Add(24*time.Hour), base.Add(30*time.Hour))
	assert.False(t, ok, "session starting exactly at blackout end must not collide")

	_, ok = index.Find(base.Add(-2*time.Hour), base)
	assert.False(t, ok, "session ending exactly at blackout start must not collide")

	all := index.Overlapping(base.Add(-time.Hour), base.Add(49*time.Hour))
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestIndex_FindsLongPeriodPastNestedOnes(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC) }
	index := NewIndex([]Period{
		{ID: "short-20", StartsAt: day(20), EndsAt: day(21)},
		{ID: "month", StartsAt: day(1), EndsAt: day(31)},
		{ID: "short-3", StartsAt: day(3), EndsAt: day(4)},
		{ID: "february", StartsAt: time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC), EndsAt: time.Date(2024, time.February, 6, 0, 0, 0, 0, time.UTC)},
	})

	p, ok := index.Find(day(25), day(25).Add(4*time.Hour))
	require.True(t, ok)
	assert.Equal(t, "month", p.ID)

	all := index.Overlapping(day(20).Add(time.Hour), day(20).Add(3*time.Hour))
	require.Len(t, all, 2)
	assert.Equal(t, "month", all[0].ID)
	assert.Equal(t, "short-20", all[1].ID)

	_, ok = index.Find(day(31), time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok, "gap between January and the February period")
}

func TestIndex_NilIsEmpty(t *testing.T) {
	t.Parallel()

	var index *Index
	_, ok := index.Find(time.Now(), time.Now().Add(time.Hour))
	assert.False(t, ok)
	assert.Zero(t, index.Len())
	assert.Nil(t, index.Overlapping(time.Now(), time.Now().Add(time.Hour)))
}
