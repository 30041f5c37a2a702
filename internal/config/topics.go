package config

const (
	// TopicIndexRebuild is the NSQ topic for index rebuild requests.
	TopicIndexRebuild = "index.rebuild"

	// TopicIndexBuilt is the NSQ topic announcing a freshly persisted snapshot.
	TopicIndexBuilt = "index.built"

	// ChannelIndexBuilder is shared by all rebuild workers, so each request
	// is handled once.
	ChannelIndexBuilder = "index-builder"
)
