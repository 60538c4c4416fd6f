// Package influxdb records outlet switch history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every successful
// switch becomes one point:
//
//	outlet_switch,address=10.0.0.5,alias=Lamp,outlet=1 on=1i,state="on"
//
// Writes are non-blocking and batched; asynchronous write failures are
// delivered to the callback set with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteOutletSwitch("10.0.0.5", 1, "Lamp", true, time.Now())
package influxdb
