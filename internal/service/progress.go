package service

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"updatekit/internal/status"
)

// ProgressLine formats a download progress event for the log.
func ProgressLine(p status.Progress) string {
	return fmt.Sprintf("Download speed: %s/s - Downloaded %s%% (%s / %s)",
		humanize.IBytes(nonNegative(int64(p.BytesPerSecond))),
		strconv.FormatFloat(p.Percent, 'f', 1, 64),
		humanize.IBytes(nonNegative(p.Transferred)),
		humanize.IBytes(nonNegative(p.Total)),
	)
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
