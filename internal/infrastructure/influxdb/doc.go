// Package influxdb writes display telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library and records:
//   - observed attribute values (display_attribute)
//   - set attempts with outcome and latency (display_attribute_set)
//   - debounced device availability (display_availability)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAttributeSample(influxdb.AttributeSample{
//	    DisplayID: "0:1", Attribute: "vibrance", Value: 512,
//	})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; asynchronous failures reach the SetOnError callback.
// All methods are safe for concurrent use.
package influxdb
