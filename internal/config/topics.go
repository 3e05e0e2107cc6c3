package config

const (
	// TopicResourceIndex carries DocumentResource payloads to be (re)indexed.
	TopicResourceIndex = "resource.index"

	// ChannelBackend is the consumer channel used by this service.
	ChannelBackend = "backend"
)
