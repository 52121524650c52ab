package recurrence

import (
	"testing"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

func BenchmarkExpand_WeeklyYear(b *testing.B) {
	rule := Rule{
		ID:       "bench",
		Pattern:  Weekly{Days: WeekdaysOf(time.Monday, time.Wednesday, time.Friday)},
		Window:   TimeWindow{Start: wallclock.Clock{Hour: 7}, End: wallclock.Clock{Hour: 17}},
		Validity: Validity{StartDate: wallclock.NewDate(2024, time.January, 1)},
		Offset:   wallclock.MustOffset(-300),
	}
	start := wallclock.NewDate(2024, time.January, 1)
	end := wallclock.NewDate(2024, time.December, 31)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Expand(rule, start, end); err != nil {
			b.Fatalf("Expand failed: %v", err)
		}
	}
}
