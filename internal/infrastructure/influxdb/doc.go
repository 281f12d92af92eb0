// Package influxdb records TermFleet session metrics in InfluxDB.
//
// Each supervisor monitor cycle writes one point per device session
// (connection state, packet and event counters, reconnect count, packet
// staleness) plus an aggregate fleet point. Writes are batched and
// non-blocking so a slow or unavailable metrics backend can never stall
// device supervision.
//
// The integration is optional and controlled by influxdb.enabled in
// configuration.
package influxdb
