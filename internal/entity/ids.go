package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns an entity ID of the form ent_<unixMillis>_<9 random chars>.
func NewID(now time.Time) string {
	return newID("ent", now)
}

// NewVoiceNoteID returns a recording ID of the form rec_<unixMillis>_<9 random chars>.
func NewVoiceNoteID(now time.Time) string {
	return newID("rec", now)
}

func newID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}
