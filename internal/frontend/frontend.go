// Package frontend implements the public listener: it waits for the
// first published identity, then accepts connections, TLS-terminates
// each one with a snapshot of the current material, and splices the
// decrypted stream to the backend.
package frontend

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/certproxy/certproxy/internal/broadcast"
)

// Frontend binds a single listening socket and terminates TLS for
// every accepted connection using whatever material the Broadcast
// currently holds.
type Frontend struct {
	listenAddr  string
	backendAddr string
	bcast       *broadcast.Broadcast
	log         *slog.Logger

	ln net.Listener
}

// New builds a Frontend. It does not bind a socket until Run is
// called.
func New(listenAddr, backendAddr string, bcast *broadcast.Broadcast, log *slog.Logger) *Frontend {
	return &Frontend{
		listenAddr:  listenAddr,
		backendAddr: backendAddr,
		bcast:       bcast,
		log:         log.With("component", "tls-frontend"),
	}
}

// Run waits for the first published identity, binds the listen
// address, and accepts connections until ctx is cancelled. It returns
// nil on an orderly shutdown.
func (f *Frontend) Run(ctx context.Context) error {
	if !f.bcast.WaitFirst(ctx.Done()) {
		return nil
	}

	ln, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("frontend: listen %s: %w", f.listenAddr, err)
	}
	f.ln = ln
	f.log.Info("listening", "address", ln.Addr().String(), "backend", f.backendAddr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				f.log.Warn("temporary accept error", "error", err)
				continue
			}
			return fmt.Errorf("frontend: accept: %w", err)
		}

		mat, ok := f.bcast.Snapshot()
		if !ok {
			f.log.Warn("dropping connection, no material published yet", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go f.handle(conn, mat.Config)
	}

	return nil
}

// handle performs the TLS handshake with the snapshotted material,
// dials the backend, and splices the two connections together until
// both directions finish. The handler captures its material by
// value-of-reference at accept time and never re-reads the Broadcast:
// a hot reload affects only connections accepted after the swap.
func (f *Frontend) handle(clientConn net.Conn, tlsConf *tls.Config) {
	remote := clientConn.RemoteAddr()
	tlsConn := tls.Server(clientConn, tlsConf)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		f.log.Debug("TLS handshake failed", "remote", remote, "error", err)
		clientConn.Close()
		return
	}

	backendConn, err := net.Dial("tcp", f.backendAddr)
	if err != nil {
		f.log.Debug("backend dial failed", "remote", remote, "backend", f.backendAddr, "error", err)
		tlsConn.Close()
		return
	}

	f.splice(tlsConn, backendConn, remote)
}

// splice bidirectionally copies bytes between the decrypted client
// side and the plaintext backend side until both directions finish,
// respecting half-close: each direction runs to its own EOF or error
// independently.
func (f *Frontend) splice(tlsConn *tls.Conn, backendConn net.Conn, remote net.Addr) {
	var wg sync.WaitGroup
	var clientToBackend, backendToClient int64

	wg.Add(2)
	go func() {
		defer wg.Done()
		n, _ := io.Copy(backendConn, tlsConn)
		clientToBackend = n
		if tcp, ok := backendConn.(*net.TCPConn); ok {
			tcp.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(tlsConn, backendConn)
		backendToClient = n
	}()
	wg.Wait()

	tlsConn.Close()
	backendConn.Close()
	f.log.Debug("connection closed", "remote", remote, "client_to_backend_bytes", clientToBackend, "backend_to_client_bytes", backendToClient)
}
