package clickhousedb

// Table DDL applied by InitSchema, in order.
const (
	telemetryTable = `
		CREATE TABLE IF NOT EXISTS telemetry (
			time_stamp   DateTime64(3),
			resource     LowCardinality(String),
			qos          UInt8,
			name         LowCardinality(String),
			type_id      Int32,
			location_id  LowCardinality(String),
			value        Float64,
			status_code  Int32,
			has_error    Bool
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(time_stamp)
		ORDER BY (name, location_id, time_stamp)
	`

	responseTable = `
		CREATE TABLE IF NOT EXISTS actuator_responses (
			time_stamp   DateTime64(3),
			resource     LowCardinality(String),
			name         LowCardinality(String),
			type_id      Int32,
			location_id  LowCardinality(String),
			command      Int8,
			value        Float64,
			state_data   String,
			has_error    Bool
		) ENGINE = MergeTree()
		ORDER BY (name, time_stamp)
	`
)

const (
	insertTelemetry = `
		INSERT INTO telemetry (time_stamp, resource, qos, name, type_id, location_id, value, status_code, has_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertResponse = `
		INSERT INTO actuator_responses (time_stamp, resource, name, type_id, location_id, command, value, state_data, has_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
)

// AllTables returns the DDL for every table the store writes to.
func AllTables() []string {
	return []string{telemetryTable, responseTable}
}
