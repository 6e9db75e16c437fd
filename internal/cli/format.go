package cli

import (
	"fmt"
	"time"

	"chartdrill/internal/models"
	"chartdrill/pkg/utils"
)

// FormatPrice formats a price with enough decimals for its magnitude.
func FormatPrice(price float64) string {
	return utils.FormatNumber(price, utils.PriceDecimals(price))
}

// FormatQuality formats a 0-100 quality score.
func FormatQuality(q float64) string {
	return fmt.Sprintf("%.0f", q)
}

// FormatRiskReward formats a reward-to-risk ratio.
func FormatRiskReward(rr float64) string {
	if rr <= 0 {
		return "-"
	}
	return fmt.Sprintf("1:%.2f", rr)
}

// FormatBar formats a bar index with the bar's time when it exists.
func FormatBar(candles []models.Candle, index int, layout string) string {
	if index < 0 || index >= len(candles) {
		return fmt.Sprintf("#%d", index)
	}
	return fmt.Sprintf("#%d %s", index, candles[index].Timestamp().Format(layout))
}

// FormatOptionalIndex formats a nullable bar index.
func FormatOptionalIndex(index *int) string {
	if index == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *index)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
