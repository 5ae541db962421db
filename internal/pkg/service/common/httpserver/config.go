package httpserver

import (
	"github.com/dimfeld/httptreemux/v5"
)

type Config struct {
	ListenAddress string
	// Mount endpoints to the router
	Mount func(router *httptreemux.ContextMux)
}
