package reminder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/statemachine"
)

func TestState_Fire(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    reminder.State
		event   reminder.Event
		want    reminder.State
		wantErr bool
	}{
		{"pending to sent", reminder.Pending, reminder.EventSent, reminder.Sent, false},
		{"zero value behaves as pending", "", reminder.EventSent, reminder.Sent, false},
		{"sent twice is rejected", reminder.Sent, reminder.EventSent, "", true},
		{"reset after send", reminder.Sent, reminder.EventReset, reminder.Pending, false},
		{"reset while pending", reminder.Pending, reminder.EventReset, reminder.Pending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.from.Fire(tt.event)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, statemachine.IsNoTransitionAvailableError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	s, err := reminder.Parse("")
	require.NoError(t, err)
	assert.Equal(t, reminder.Pending, s)

	s, err = reminder.Parse("sent")
	require.NoError(t, err)
	assert.True(t, s.IsSent())

	_, err = reminder.Parse("maybe")
	assert.ErrorIs(t, err, reminder.ErrUnknownState)
}
