package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/showroom/internal/config"
	"github.com/matheus3301/showroom/internal/devserver"
	"github.com/matheus3301/showroom/internal/logging"
)

const envSecret = "SHOWROOM_DEV_SECRET"

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	secret := flag.String("secret", "", "token signing secret (or "+envSecret+")")
	seedPath := flag.String("seed", "", "TOML seed file with [[channels]] and [[users]]")
	dmExpiry := flag.Duration("dm-expiry", 0, "drop direct messages older than this (0 keeps them)")
	publicURL := flag.String("public-url", "", "base URL for signed file links (default: request host)")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed seed user tokens")
	verbose := flag.Bool("verbose", false, "log every request")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *secret == "" {
		*secret = os.Getenv(envSecret)
	}
	if *secret == "" {
		fmt.Fprintf(os.Stderr, "error: --secret or %s is required\n", envSecret)
		os.Exit(1)
	}

	seed := devserver.DefaultSeed()
	if *seedPath != "" {
		s, err := devserver.LoadSeed(*seedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		seed = s
	}

	logger := logging.NewConsole(*verbose)
	defer func() { _ = logger.Sync() }()

	srv, err := devserver.New(devserver.Options{
		Secret:    []byte(*secret),
		Channels:  seed.Channels,
		Users:     seed.Users,
		DMExpiry:  *dmExpiry,
		PublicURL: *publicURL,
		Verbose:   *verbose,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("showroom devserver listening on http://%s\n", *addr)
	for _, u := range seed.Users {
		tok, err := devserver.MintToken([]byte(*secret), u.Identity(), *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: mint token for %s: %v\n", u.Email, err)
			os.Exit(1)
		}
		fmt.Printf("  %-28s %-7s %s\n", u.Email, u.Role, tok)
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", zap.Error(err))
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Open SSE streams hold connections; Shutdown gives up at the deadline.
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			_ = httpSrv.Close()
		}
	}
}
