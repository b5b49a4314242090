// Command outlier-report runs one mixture-model outlier analysis and
// reports the attribute combinations that explain its outliers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/db"
	"github.com/banshee-data/outlier.report/internal/httputil"
	"github.com/banshee-data/outlier.report/internal/pipeline"
	"github.com/banshee-data/outlier.report/internal/result"
	"github.com/banshee-data/outlier.report/internal/version"
)

const defaultResultsDB = "outlier_results.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		log.Printf("outlier-report: %v", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	resultsDB  string
	jsonOut    bool
	serve      string
	version    bool
}

func parseFlags(args []string, out io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("outlier-report", flag.ContinueOnError)
	fs.SetOutput(out)

	var o options
	fs.StringVar(&o.configPath, "config", "", "Path to the analysis config (.json, .yaml or .yml)")
	fs.StringVar(&o.resultsDB, "results-db", "", "Store the result in this SQLite database")
	fs.BoolVar(&o.jsonOut, "json", false, "Print the result as JSON")
	fs.StringVar(&o.serve, "serve", "", "After the run, serve the results database admin routes on this address until interrupted")
	fs.BoolVar(&o.version, "version", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &o, fs.Args(), nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, rest, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	if o.version {
		fmt.Fprintln(out, version.String())
		return nil
	}

	if len(rest) > 0 && rest[0] == "migrate" {
		path := o.resultsDB
		if path == "" {
			path = defaultResultsDB
		}
		return db.RunMigrateCommand(rest[1:], path, out)
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments: %q", rest)
	}

	if o.configPath == "" {
		return errors.New("-config is required")
	}
	if o.serve != "" && o.resultsDB == "" {
		return errors.New("-serve needs -results-db")
	}

	cfg, err := config.LoadAnalysisConfig(o.configPath)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{Logf: log.Printf})
	if err := p.Initialize(cfg); err != nil {
		return err
	}
	results, err := p.Run(ctx)
	if err != nil {
		return err
	}
	res := results[0]

	if err := printResult(out, res, o.jsonOut); err != nil {
		return err
	}

	if o.resultsDB == "" {
		return nil
	}

	database, err := db.NewDB(o.resultsDB)
	if err != nil {
		return fmt.Errorf("failed to open results database: %w", err)
	}
	defer database.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	id, err := database.SaveAnalysisRun(ctx, db.AnalysisRun{
		QueryName:   cfg.GetQueryName(),
		CreatedUnix: time.Now().Unix(),
		ConfigJSON:  string(cfgJSON),
		Result:      res,
	})
	if err != nil {
		return err
	}
	log.Printf("saved run %s to %s", id, o.resultsDB)

	if o.serve == "" {
		return nil
	}
	return serve(ctx, o.serve, database)
}

func printResult(w io.Writer, res result.AnalysisResult, asJSON bool) error {
	if !asJSON {
		return res.WriteText(w)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func newMux(database *db.DB) *http.ServeMux {
	mux := http.NewServeMux()
	database.AttachAdminRoutes(mux)

	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				httputil.BadRequest(w, "invalid limit")
				return
			}
			limit = n
		}
		runs, err := database.ListAnalysisRuns(r.Context(), limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if runs == nil {
			runs = []db.AnalysisRun{}
		}
		httputil.WriteJSON(w, http.StatusOK, runs)
	})

	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := database.GetAnalysisRun(r.Context(), r.PathValue("id"))
		if errors.Is(err, db.ErrRunNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, run)
	})
	return mux
}

func serve(ctx context.Context, addr string, database *db.DB) error {
	server := &http.Server{
		Addr:    addr,
		Handler: newMux(database),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving results on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Print("server stopped")
	return nil
}
