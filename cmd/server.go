package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/viktsys/twmarket/api"
	"github.com/viktsys/twmarket/metrics"
)

var serverAddr string

var serverCMD = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the API server",
	Long:    `Start the read-only HTTP API over the stored market data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		metrics.Init()
		collector := metrics.NewTableCollector(store, log)
		if err := prometheus.Register(collector); err != nil {
			log.WithError(err).Warn("table metrics unavailable")
		}
		defer prometheus.Unregister(collector)

		addr := serverAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.SetupRoutes(store, log),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, cancel := interruptible(cmd)
		defer cancel()

		errc := make(chan error, 1)
		go func() {
			log.Infof("Starting server on %s", addr)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serverCMD.Flags().StringVar(&serverAddr, "addr", "", "listen address (default SERVER_ADDR)")
}
