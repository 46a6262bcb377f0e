// Package influxdb provides the time-series history sink for Thing activity.
//
// Every property change, action transition and event can be written as a
// point so dashboards can chart device behaviour over time:
//
//	thing_properties,thing_id=lamp-1,property=brightness value=80
//	thing_actions,thing_id=lamp-1,action=fade id="...",duration_ms=1500i
//	thing_events,thing_id=lamp-1,event=overheated count=1i,value=102
//
// Writes are batched and non-blocking. When the server is unreachable at
// startup, Connect fails and the gateway runs without history.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history off
//	}
//	defer client.Close()
//	client.WritePropertyValue("lamp-1", "brightness", 80, time.Now())
package influxdb
