/*
 *	cloudrpc allows for clients to call procedures on a compute server remotely.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.arsenm.dev/cloudrpc/internal/types"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/net/websocket"
)

// Handler returns an HTTP handler for the server.
//
//	GET  /        upgrades to a WebSocket connection served by ServeConn
//	POST /call    executes a single request envelope sent as JSON
//	GET  /metrics exposes the server's metrics in Prometheus format
func (s *Server) Handler() http.Handler {
	// Create new WebSocket server
	ws := websocket.Server{
		Config: websocket.Config{
			Version: websocket.ProtocolVersionHybi13,
		},
		Handler: func(c *websocket.Conn) {
			s.ServeConn(c.Request().Context(), c)
		},
	}

	router := httprouter.New()
	router.Handler(http.MethodGet, "/", ws)
	router.POST("/call", s.handleCall)
	router.GET("/metrics", s.handleMetrics)
	return router
}

// Serve serves the HTTP handler on ln until ctx is canceled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	s.log.Infof("listening on %s", ln.Addr())

	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeWS listens on addr and serves clients until ctx is canceled
func (s *Server) ServeWS(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleCall(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	var call types.Request
	err := json.NewDecoder(http.MaxBytesReader(res, req.Body, s.maxBody)).Decode(&call)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(res, status, types.ErrorReply{Error: err.Error()})
		return
	}

	val, err := s.Execute(req.Context(), "http:"+req.RemoteAddr, call)
	switch {
	case errors.Is(err, ErrNoSuchProcedure), errors.Is(err, ErrNoSuchObject):
		writeJSON(res, http.StatusNotFound, types.ErrorReply{Error: err.Error()})
	case errors.Is(err, ErrRateLimited):
		writeJSON(res, http.StatusTooManyRequests, types.ErrorReply{Error: err.Error()})
	case errors.Is(err, ErrArgCount), errors.Is(err, ErrInvalidArgument):
		writeJSON(res, http.StatusBadRequest, types.ErrorReply{Error: err.Error()})
	case err != nil:
		writeJSON(res, http.StatusInternalServerError, types.ErrorReply{Error: err.Error()})
	default:
		writeJSON(res, http.StatusOK, val)
	}
}

func (s *Server) handleMetrics(res http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	res.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(res)
}

func writeJSON(res http.ResponseWriter, status int, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(types.ErrorReply{Error: err.Error()})
	}

	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	res.Write(data)
}
