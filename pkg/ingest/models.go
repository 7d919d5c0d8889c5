// Package ingest implements the C4 ingest pipeline: accepting raw
// (channel, input_key, payload) triples, normalizing keys, resolving
// mappings, applying value transforms, and handing the result to the
// signal backbone (and, for power fields, the EMR integrator). Grounded
// on original_source's app/services/input_ingest.py.
package ingest

import "time"

// Channel mirrors a row in input_channels.
type Channel struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	ChannelType string `db:"channel_type"` // "http" (mqtt retained only as a legacy channel_type value)
	Enabled     bool   `db:"enabled"`
}

// SignConvention controls the sign flip applied to a mapped numeric value.
type SignConvention string

const (
	SignConventionNative          SignConvention = "native"
	SignConventionPositiveIsExport SignConvention = "positive_is_export"
)

// Mapping is the enabled-mapping snapshot the pipeline needs per input_key.
// MqttTopic is retained as a legacy, nullable alternate key; InputKey wins
// whenever both are present on a mapping.
type Mapping struct {
	ID              int64
	EosField        string
	ChannelID       int64
	InputKey        string
	MqttTopic       *string
	PayloadPath     string
	TimestampPath   string
	Unit            string
	ValueMultiplier float64
	SignConvention  SignConvention
}

// Result is the output contract of Pipeline.Ingest.
type Result struct {
	Accepted       bool
	ChannelID      int64
	ChannelCode    string
	ChannelType    string
	InputKey       string
	NormalizedKey  string
	MappingMatched bool
	MappingID      *int64
	EventTs        time.Time
}

const paramChannelPrefix = "eos/param/"
