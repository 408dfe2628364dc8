package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLog_KeepsMostRecent(t *testing.T) {
	log := NewEventLog(3)
	for i := 0; i < 5; i++ {
		log.Append(Event{Message: fmt.Sprint(i)})
	}

	assert.Equal(t, 3, log.Len())
	var got []string
	for _, e := range log.Entries() {
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"2", "3", "4"}, got)
}

func TestEventLog_DefaultCapacityNeverExceeded(t *testing.T) {
	log := NewEventLog(0)
	for i := 0; i < DefaultEventLogCapacity*2+7; i++ {
		log.Append(Event{Message: fmt.Sprint(i)})
	}

	entries := log.Entries()
	assert.Len(t, entries, DefaultEventLogCapacity)
	assert.Equal(t, fmt.Sprint(DefaultEventLogCapacity+7), entries[0].Message)
	assert.Equal(t, fmt.Sprint(DefaultEventLogCapacity*2+6), entries[len(entries)-1].Message)
}
