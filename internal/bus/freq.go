package bus

import "time"

// FrequencyTable maps channel names to their nominal publish rate in
// messages per second. Unknown channels report 0 and therefore contribute
// nothing to an expected message count.
type FrequencyTable map[string]float64

// Frequency returns the nominal publish rate for channel, or 0 if unknown.
func (t FrequencyTable) Frequency(channel string) float64 {
	return t[channel]
}

// ExpectedMessages returns the total message volume the channels should
// produce over window at their nominal rates. The fractional tail is
// truncated, matching how expectations were recorded.
func (t FrequencyTable) ExpectedMessages(channels []string, window time.Duration) int {
	var total float64
	for _, ch := range channels {
		total += t[ch] * window.Seconds()
	}
	return int(total)
}
