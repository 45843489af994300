// Package command implements the newline-framed command stream: one
// command per line, one OK:/ERR: response per command. Unauthenticated
// access is limited to register, login, validate_session, users and
// help; every other command requires a valid session token as its
// first argument.
package command

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net"
	"time"

	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/auth"
	"github.com/kestrelchat/kestrel/internal/server/groups"
	"github.com/kestrelchat/kestrel/internal/server/presence"
	"github.com/kestrelchat/kestrel/internal/server/repository"
	"github.com/kestrelchat/kestrel/internal/server/router"
)

// Server accepts TCP connections and runs the command protocol on each.
type Server struct {
	addr      string
	tlsConfig *tls.Config

	db       *sql.DB
	auth     *auth.Manager
	groups   *groups.Service
	router   *router.Router
	users    repository.Users
	presence *presence.Registry
	log      logging.Logger

	ln net.Listener
}

func NewServer(addr string, tlsConfig *tls.Config, db *sql.DB, authMgr *auth.Manager, groupsSvc *groups.Service, r *router.Router, users repository.Users, reg *presence.Registry, log logging.Logger) *Server {
	return &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		db:        db,
		auth:      authMgr,
		groups:    groupsSvc,
		router:    r,
		users:     users,
		presence:  reg,
		log:       log,
	}
}

// Run listens until ctx is canceled, spawning one goroutine per
// accepted connection.
func (s *Server) Run(ctx context.Context) error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info(ctx, "command stream listening", "addr", s.addr, "tls", s.tlsConfig != nil)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn(ctx, "command stream accept failed", "error", err)
				continue
			}
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(30 * time.Second)
		}
		c := newConnHandler(s, conn)
		go c.run(ctx)
	}
}

func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}
