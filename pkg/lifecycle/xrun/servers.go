package xrun

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
)

// HTTPServer 把 http.Server 包装为组件：ctx 取消时在 timeout 内优雅关闭
func HTTPServer(srv *http.Server, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil {
			return ErrNilServer
		}
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			err = errors.Join(err, serveErr)
		}
		return err
	}
}

// GRPCServer 把 grpc.Server 包装为组件：ctx 取消时 GracefulStop，
// 超过 timeout 仍未结束则强制 Stop
func GRPCServer(srv *grpc.Server, lis net.Listener, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if srv == nil || lis == nil {
			return ErrNilServer
		}
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Serve(lis)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			srv.Stop()
			<-done
		}

		if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}
