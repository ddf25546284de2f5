// Package relay maintains one resilient websocket connection to a relay.
//
// A Link moves through DISCONNECTED -> CONNECTING -> OPEN -> (CLOSING) ->
// DISCONNECTED. It reconnects with a linear, clamped backoff, and only a
// connection that stays OPEN for the healthy dwell resets that backoff.
// Every timer is scoped to the connection that started it; a timer that
// fires after its connection was superseded does nothing.
//
// Relay-side subscriptions do not survive a reconnect. Use OnOpen to
// resubmit them from scratch.
//
// # Basic Usage
//
//	link := relay.NewLink(relay.DefaultConfig,
//	    relay.OnMessage(handle),
//	    relay.OnOpen(resubscribe),
//	    relay.OnStatus(func(st relay.Status) { ... }),
//	)
//	if err := link.Connect("wss://relay.example.com"); err != nil {
//	    return err
//	}
//	defer link.Close()
//
//	frame, _ := relay.EncodeReq("sub", []nostr.Filter{filter})
//	link.Send(frame)
package relay
