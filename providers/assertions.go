package providers

import (
	"github.com/orchestra-mcp/roomchat/src/bridge"
	"github.com/orchestra-mcp/roomchat/src/conn"
	"github.com/orchestra-mcp/roomchat/src/relay"
	"github.com/orchestra-mcp/roomchat/src/types"
)

// Compile-time interface assertions.
var (
	_ bridge.Bridge          = (*bridge.RedisBridge)(nil)
	_ bridge.BroadcastTarget = (*relay.Hub)(nil)
	_ relay.MessageBridge    = (*bridge.RedisBridge)(nil)
	_ types.Socket           = (*conn.Client)(nil)
	_ types.Conn             = (*fasthttpConn)(nil)
	_ types.Pinger           = (*fasthttpConn)(nil)
)
