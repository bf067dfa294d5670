package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMakeID(t *testing.T) {
	at := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "pre-change_20260731T120000Z", makeID("pre-change", at))
}

func TestMakeID_LocalTimeNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	at := time.Date(2026, 7, 31, 7, 0, 0, 0, loc) // 12:00 UTC
	require.Equal(t, "snap_20260731T120000Z", makeID("snap", at))
}
