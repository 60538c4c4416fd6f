package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementOutletSwitch is the measurement name for switch history.
const MeasurementOutletSwitch = "outlet_switch"

// WriteOutletSwitch records that an outlet was switched. Non-blocking; a
// disconnected client drops the point.
//
// Parameters:
//   - address: Strip network address (tag)
//   - outlet: 1-based outlet number (tag)
//   - alias: Outlet alias as reported by the strip (tag)
//   - on: Resulting relay state
//   - at: Time of the switch
func (c *Client) WriteOutletSwitch(address string, outlet int, alias string, on bool, at time.Time) {
	state, value := "off", 0
	if on {
		state, value = "on", 1
	}

	c.WritePoint(MeasurementOutletSwitch,
		map[string]string{
			"address": address,
			"outlet":  strconv.Itoa(outlet),
			"alias":   alias,
		},
		map[string]any{
			"on":    value,
			"state": state,
		},
		at,
	)
}

// WritePoint writes an arbitrary point. Non-blocking.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
