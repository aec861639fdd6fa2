package log

// Canonical field names.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldUserID     = "user_id"
	FieldSeriesID   = "series_id"
	FieldEpisodeID  = "episode_id"
	FieldChannelID  = "channel_id"
	FieldProgramID  = "program_id"
	FieldStreamID   = "stream_id"
	FieldReference  = "reference_id"
	FieldBatchSize  = "batch_size"
	FieldDurationMS = "duration_ms"
)
