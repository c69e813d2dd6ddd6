package nostr

import "github.com/rs/zerolog"

// Logger receives connection-level chatter (notices, dropped events, closed
// connections). It is silent unless replaced with SetLogger.
var Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) { Logger = l }
