package events

const (
	TopicEndpointStatus = "endpoint.status"
	TopicMessage        = "message"
	TopicChannels       = "channels"
	TopicNodeInfo       = "node.info"
	TopicCommandStatus  = "command.status"
)

// AllTopics lists every topic the dashboard gateway mirrors.
var AllTopics = []string{
	TopicEndpointStatus,
	TopicMessage,
	TopicChannels,
	TopicNodeInfo,
	TopicCommandStatus,
}
