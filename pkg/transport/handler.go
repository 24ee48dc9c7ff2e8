package transport

// ServerHandler 服务端事件回调
// 回调在协程池中执行，同一连接的回调不会并发
type ServerHandler interface {
	// OnConnected 连接通过准入后、开始接收前调用
	OnConnected(c *AcceptedClient)

	// OnReceived data 指向连接的接收窗口，只在回调期间有效
	OnReceived(c *AcceptedClient, data []byte)

	// OnDisconnected 对端关闭时 err 为 nil
	OnDisconnected(c *AcceptedClient, err error)
}

// NopServerHandler 空实现
type NopServerHandler struct{}

func (NopServerHandler) OnConnected(*AcceptedClient)           {}
func (NopServerHandler) OnReceived(*AcceptedClient, []byte)    {}
func (NopServerHandler) OnDisconnected(*AcceptedClient, error) {}

// ClientHandler 客户端事件回调
type ClientHandler interface {
	// OnReceived data 只在回调期间有效
	OnReceived(c *Client, data []byte)

	// OnStateChanged 连接建立时 running 为 true，断开时为 false，各触发一次
	OnStateChanged(c *Client, running bool)
}

// NopClientHandler 空实现
type NopClientHandler struct{}

func (NopClientHandler) OnReceived(*Client, []byte)   {}
func (NopClientHandler) OnStateChanged(*Client, bool) {}
