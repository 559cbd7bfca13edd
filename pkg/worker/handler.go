// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/noema-ai/noema/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Workers bind to loopback or sit behind a trusted proxy; the
		// protocol carries no browser credentials.
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

// Router builds the HTTP surface: the session websocket endpoint plus
// health and metrics.
func (rt *Runtime) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("noema-worker"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": rt.SessionCount(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/v1/session", rt.handleSessionWS)

	return router
}

// handleSessionWS upgrades the request and runs the connection loop to
// completion. Gin already runs each request on its own goroutine, so
// the loop executes inline.
func (rt *Runtime) handleSessionWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rt.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	rt.logger.Info("client connected", "remote", c.Request.RemoteAddr)
	rt.ServeTransport(protocol.NewWS(ws))
}
