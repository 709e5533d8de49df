package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"storefront/internal/model"
)

func TestEventRecord(t *testing.T) {
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)

	rec, ok := eventRecord(&gcal.Event{
		Id:      "a",
		Summary: "  Live sale ",
		Start:   &gcal.EventDateTime{DateTime: "2024-01-16T11:00:00+02:00"},
	}, kyiv)
	require.True(t, ok)
	assert.Equal(t, "Live sale", rec.Title)
	assert.True(t, rec.Start.Equal(time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)))
	assert.True(t, rec.End.Equal(rec.Start))
	assert.False(t, rec.AllDay)

	rec, ok = eventRecord(&gcal.Event{
		Start: &gcal.EventDateTime{Date: "2024-01-17"},
		End:   &gcal.EventDateTime{Date: "2024-01-18"},
	}, kyiv)
	require.True(t, ok)
	assert.Equal(t, model.DefaultTitle, rec.Title)
	assert.True(t, rec.AllDay)
	assert.True(t, rec.Start.Equal(time.Date(2024, 1, 17, 0, 0, 0, 0, kyiv)))

	for name, e := range map[string]*gcal.Event{
		"nil event":   nil,
		"nil start":   {Summary: "x"},
		"empty":       {Start: &gcal.EventDateTime{}},
		"bad rfc3339": {Start: &gcal.EventDateTime{DateTime: "tomorrow"}},
	} {
		_, ok := eventRecord(e, kyiv)
		assert.False(t, ok, name)
	}
}
