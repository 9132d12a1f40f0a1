// Package statusz 提供只读的运行状态 HTTP 端点：/healthz、/metrics、/progress。
// 仅用于本机诊断；不接受写操作。
package statusz

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"streamtrans/internal/diag"
)

// Server 为 chi 路由 + 标准库 http.Server 的薄封装。
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *diag.Logger
	done   chan error
}

// Router 返回挂载了全部状态端点的路由。
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		samples := diag.Snapshot()
		if samples == nil {
			samples = []diag.Sample{}
		}
		writeJSON(w, samples)
	})
	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, diag.CurrentProgress())
	})
	return r
}

// Start 监听 addr 并在后台提供服务；监听失败立即返回错误。
func Start(addr string, logger *diag.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	t := logger.StartWithKV("statusz", "listen", "", "", map[string]string{"addr": ln.Addr().String()})
	t.Finish("listening", 0)
	return s, nil
}

// Addr 返回实际监听地址（addr 端口为 0 时可取得分配端口）。
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown 优雅停止；返回服务循环的退出错误。
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
