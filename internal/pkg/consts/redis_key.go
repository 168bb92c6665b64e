package consts

const (
	// ChatEventChannel 跨实例事件镜像频道
	ChatEventChannel = "chat:events"
	// ChatUnreadTotalKey 全局未读数缓存，30 秒过期
	ChatUnreadTotalKey = "chat:unread:total:"
)
