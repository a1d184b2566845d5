package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// CallbackServer is a loopback HTTP server receiving OAuth redirects for
// command line sign-in.
type CallbackServer struct {
	mu       sync.Mutex
	addr     string
	listener net.Listener
	server   *http.Server
	errCh    chan error
}

// NewCallbackServer creates a callback server for addr. Use
// "127.0.0.1:0" to pick a free port.
func NewCallbackServer(addr string) *CallbackServer {
	return &CallbackServer{addr: addr, errCh: make(chan error, 1)}
}

// Listen binds the listening socket so RedirectURL is known before Serve.
func (s *CallbackServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// RedirectURL returns the URL Google should redirect to.
func (s *CallbackServer) RedirectURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	port := 0
	if s.listener != nil {
		if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = tcpAddr.Port
		}
	}
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, CallbackPath)
}

// Serve starts serving handler on CallbackPath in the background.
func (s *CallbackServer) Serve(handler http.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return errors.New("callback server is not listening")
	}

	mux := http.NewServeMux()
	mux.Handle(CallbackPath, handler)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}(s.server, s.listener)
	return nil
}

// Err reports a serve failure, if any.
func (s *CallbackServer) Err() <-chan error {
	return s.errCh
}

// Stop shuts the server down.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
