package main

import (
	"net/http"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/app"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/server"
)

func newHandler(rt *app.Runtime) (http.Handler, error) {
	return server.New(server.Config{
		Engine:   rt.Engine,
		BasePath: rt.Config.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret: rt.Config.Auth.JWTSecret,
			TokenTTL:  rt.Config.Auth.TokenTTL,
			DevTokens: rt.Config.Auth.DevTokens,
		},
		Logger: rt.Logger.With().Str("component", "http").Logger(),
	})
}
