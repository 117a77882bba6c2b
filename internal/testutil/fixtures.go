package testutil

import (
	"fmt"
	"time"
)

// Interval is a scan interval whose string rendering ("60s") matches the
// server's rendering of the interval property.
type Interval int

func (i Interval) String() string {
	return fmt.Sprintf("%ds", int(i))
}

func device(id int, name, host string) map[string]any {
	return map[string]any{"Id": id, "Name": name, "Host": host}
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// SampleSensors returns a fresh set of Sensor objects matching SampleCUE.
// Objects are maps keyed by member name; absent or nil entries are null.
func SampleSensors() []any {
	core := device(100, "core-1", "10.0.0.1")
	edge := device(101, "edge-1", "10.0.1.1")

	return []any{
		map[string]any{
			"Id": 1, "Name": "db-primary", "Status": "Up", "Priority": 4,
			"Uptime": 99.5, "Active": true, "LastUp": at("2026-01-02T03:04:05Z"),
			"Tags": []any{"db", "primary"}, "Parent": core, "Interval": Interval(60),
			"Message": "OK",
		},
		map[string]any{
			"Id": 2, "Name": "db-replica", "Status": "Down", "Priority": 5,
			"Uptime": 80.0, "Active": true, "LastUp": at("2026-01-01T00:00:00Z"),
			"Tags": []any{"db", "replica"}, "Parent": core, "Interval": Interval(30),
			"Message": "Connection refused",
		},
		map[string]any{
			"Id": 3, "Name": "web-frontend", "Status": "Warning", "Priority": 3,
			"Uptime": 95.25, "Active": true, "LastUp": at("2026-01-03T12:00:00Z"),
			"Tags": []any{"web"}, "Parent": edge, "Interval": Interval(60),
			"Message": "Slow response",
		},
		map[string]any{
			"Id": 4, "Name": "Ping", "Status": "Up", "Priority": 1,
			"Uptime": 100.0, "Active": false, "LastUp": at("2026-01-03T13:00:00Z"),
			"Tags": []any{}, "Parent": edge, "Interval": Interval(300),
			"Message": "OK",
		},
		map[string]any{
			"Id": 5, "Name": nil, "Status": "Paused", "Priority": 2,
			"Uptime": nil, "Active": false, "LastUp": nil,
			"Tags": nil, "Parent": nil, "Interval": Interval(60),
			"Message": "Paused by user",
		},
		map[string]any{
			"Id": 6, "Name": "disk-free", "Status": "Down", "Priority": 4,
			"Uptime": 12.0, "Active": true, "LastUp": at("2025-12-24T08:00:00Z"),
			"Tags": []any{"disk"}, "Parent": nil, "Interval": Interval(600),
			"Message": "Disk full",
		},
	}
}

// SampleDevices returns the Device objects referenced by SampleSensors.
func SampleDevices() []any {
	return []any{
		device(100, "core-1", "10.0.0.1"),
		device(101, "edge-1", "10.0.1.1"),
	}
}
