package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/0ui-labs/smart-youtube-bookmarks-sub001/internal/chapters"
)

const DefaultFrameRate = 30.0

// GenerateChapterEDL renders chapters as a CMX3600-style edit list with one
// event per chapter. Source in/out are the chapter bounds; record times
// accumulate so the events play back to back.
func GenerateChapterEDL(title string, list []chapters.Chapter, frameRate float64) string {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	fps := int(math.Round(frameRate))

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordMs := 0
	for i, ch := range list {
		startMs := secondsToMs(ch.Start)
		endMs := secondsToMs(ch.End)
		if endMs < startMs {
			endMs = startMs
		}
		durationMs := endMs - startMs

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				msToTimecode(startMs, fps), msToTimecode(endMs, fps),
				msToTimecode(recordMs, fps), msToTimecode(recordMs+durationMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(ch.Title, 120)),
		)

		recordMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToMs(s float64) int {
	return int(math.Round(s * 1000))
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
