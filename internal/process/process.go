// Package process holds the start-up and shutdown steps shared by the issuer, broker and services binaries.
package process

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Run serves srv until SIGINT or SIGTERM, then shuts it down. Panics inside Run are
// turned into an error so the caller can decide whether to restart.
func Run(srv *http.Server) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			returnError = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	failed := make(chan error, 1)
	go func() {
		failed <- ListenAndServe(srv)
	}()

	select {
	case err := <-failed:
		return err
	case <-StopSignal():
	}
	return Shutdown(srv)
}

func ListenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

// StopSignal fires once on SIGINT or SIGTERM
func StopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Str("addr", srv.Addr).Msg("server stopped")
	return nil
}

func DisplayAppName(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
