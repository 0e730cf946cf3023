package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/apply-cli/internal/fingerprint"
	"github.com/sells-group/apply-cli/internal/model"
	"github.com/sells-group/apply-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for inbound listings",
	Long:  "Accepts listings pushed by external watchers and exposes pipeline status. Pushed listings enter the pipeline at discovered, same as a sweep.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mux := buildMux(ctx, st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildMux(ctx context.Context, st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		counts, err := st.CountByStage(r.Context())
		if err != nil {
			http.Error(w, `{"error":"status query failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(counts)
	})

	mux.HandleFunc("POST /webhook/listing", func(w http.ResponseWriter, r *http.Request) {
		var listing model.RawListing
		if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if listing.Title == "" || listing.Company == "" {
			http.Error(w, `{"error":"title and company are required"}`, http.StatusBadRequest)
			return
		}
		if listing.Source == "" {
			listing.Source = "webhook"
		}

		fp := fingerprint.Identify(listing)

		// Land the listing asynchronously; the webhook caller only needs
		// the fingerprint to poll status later.
		go func() {
			if _, err := st.ArchiveRaw(ctx, []model.RawListing{listing}); err != nil {
				zap.L().Error("webhook archive failed",
					zap.String("fingerprint", fp), zap.Error(err))
				return
			}
			op := model.FromListing(fp, listing, time.Now().UTC())
			merged, err := st.UpsertDiscovered(ctx, op, false)
			if err != nil {
				zap.L().Error("webhook upsert failed",
					zap.String("fingerprint", fp), zap.Error(err))
				return
			}
			zap.L().Info("webhook listing landed",
				zap.String("fingerprint", fp),
				zap.String("company", listing.Company),
				zap.Bool("merged", merged),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "accepted",
			"fingerprint": fp,
		})
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
