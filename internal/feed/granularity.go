package feed

import (
	"fmt"

	"github.com/capbridge/capbridge/internal/config"
)

// Resolution is the exchange-side request granularity for a timeframe.
//
// Sub-minute timeframes have no native history endpoint. They resolve to a
// MINUTE request plus a Step: each minute candle fans out into identical
// children spaced Step seconds apart.
type Resolution struct {
	Label   string // human name, e.g. "SECONDS_15"
	Request string // resolution sent to the exchange
	Seconds int    // seconds per requested candle
	Step    int    // child spacing in seconds, 0 = no fan-out
}

// Synthetic reports whether candles are fanned out client-side.
func (r Resolution) Synthetic() bool { return r.Step > 0 }

// Children returns the number of bars one requested candle produces.
func (r Resolution) Children() int {
	if r.Step == 0 {
		return 1
	}
	return r.Seconds / r.Step
}

func (r Resolution) String() string {
	return r.Label
}

var resolutions = map[config.TimeframeConfig]Resolution{
	{Unit: "second", Multiple: 5}:  {Label: "SECONDS_5", Request: "MINUTE", Seconds: 60, Step: 5},
	{Unit: "second", Multiple: 15}: {Label: "SECONDS_15", Request: "MINUTE", Seconds: 60, Step: 15},
	{Unit: "second", Multiple: 30}: {Label: "SECONDS_30", Request: "MINUTE", Seconds: 60, Step: 30},
	{Unit: "minute", Multiple: 1}:  {Label: "MINUTE", Request: "MINUTE", Seconds: 60},
	{Unit: "minute", Multiple: 5}:  {Label: "MINUTE_5", Request: "MINUTE_5", Seconds: 300},
	{Unit: "minute", Multiple: 15}: {Label: "MINUTE_15", Request: "MINUTE_15", Seconds: 900},
	{Unit: "minute", Multiple: 30}: {Label: "MINUTE_30", Request: "MINUTE_30", Seconds: 1800},
	{Unit: "minute", Multiple: 60}: {Label: "HOUR", Request: "HOUR", Seconds: 3600},
	{Unit: "minute", Multiple: 240}: {Label: "HOUR_4", Request: "HOUR_4", Seconds: 14400},
	{Unit: "hour", Multiple: 1}:    {Label: "HOUR", Request: "HOUR", Seconds: 3600},
	{Unit: "hour", Multiple: 4}:    {Label: "HOUR_4", Request: "HOUR_4", Seconds: 14400},
	{Unit: "day", Multiple: 1}:     {Label: "DAY", Request: "DAY", Seconds: 86400},
	{Unit: "week", Multiple: 1}:    {Label: "WEEK", Request: "WEEK", Seconds: 604800},
}

// Resolve maps a configured timeframe to its request resolution. Any other
// combination is unsupported and terminates the feed at start.
func Resolve(tf config.TimeframeConfig) (Resolution, error) {
	res, ok := resolutions[tf]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported timeframe %s/%d", tf.Unit, tf.Multiple)
	}
	return res, nil
}
