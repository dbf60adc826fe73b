package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/five82/vigil/internal/config"
	"github.com/five82/vigil/internal/filter"
	"github.com/five82/vigil/internal/frigate"
	"github.com/five82/vigil/internal/logging"
)

var (
	eventsInProgress bool
	eventsLabels     []string
	eventsCameras    []string
	eventsZones      []string
	eventsLimit      int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Fetch and print events once",
	Example: `  vigil events --in-progress
  vigil events --label person --camera front --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, client, err := setupClient()
		if err != nil {
			return err
		}
		f := filter.New(eventsLabels, eventsZones, eventsCameras)
		limit := cfg.Limit
		if eventsLimit > 0 {
			limit = eventsLimit
		}

		events, err := client.FetchEvents(cmd.Context(), frigate.EventQuery{
			Cameras:    f.Single(filter.Cameras),
			Labels:     f.Single(filter.Labels),
			Zones:      f.Single(filter.Zones),
			InProgress: eventsInProgress,
			Limit:      limit,
			Timezone:   cfg.Timezone,
		})
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		events = f.Apply(events)

		if jsonOutput {
			return printJSON(os.Stdout, events)
		}
		return printEvents(os.Stdout, events, cfg.Location())
	},
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List cameras configured on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, client, err := setupClient()
		if err != nil {
			return err
		}
		cameras, err := client.FetchCameras(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch cameras: %w", err)
		}
		if jsonOutput {
			return printJSON(os.Stdout, cameras)
		}
		for _, c := range cameras {
			fmt.Fprintln(os.Stdout, c)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the resolved Frigate server version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, client, err := setupClient()
		if err != nil {
			return err
		}
		v := client.Version(cmd.Context())
		if jsonOutput {
			return printJSON(os.Stdout, map[string]any{
				"version":  v.String(),
				"raw":      v.Raw,
				"base_url": client.BaseURL().String(),
			})
		}
		fmt.Fprintf(os.Stdout, "frigate %s (%s)\n", v, client.BaseURL())
		return nil
	},
}

var mediaCmd = &cobra.Command{
	Use:   "media <event-id>",
	Short: "Probe clip URLs for an event and print the playable one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := setupClient()
		if err != nil {
			return err
		}
		id := strings.TrimSpace(args[0])
		url, results, err := client.ResolveClip(cmd.Context(), id)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "URL\tSTATUS\tTYPE\tRESULT")
		for _, r := range results {
			status := "-"
			if r.StatusCode > 0 {
				status = fmt.Sprintf("%d", r.StatusCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.URL, status, orDash(r.ContentType), r.Reason)
		}
		_ = w.Flush()

		if errors.Is(err, frigate.ErrNoPlayableFormat) {
			return fmt.Errorf("event %s: %w", id, err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\nclip:     %s\nsnapshot: %s\n", url, client.SnapshotURL(id))
		return nil
	},
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsInProgress, "in-progress", false, "only events that have not ended")
	eventsCmd.Flags().StringSliceVar(&eventsLabels, "label", nil, "label filter (repeatable)")
	eventsCmd.Flags().StringSliceVar(&eventsCameras, "camera", nil, "camera filter (repeatable)")
	eventsCmd.Flags().StringSliceVar(&eventsZones, "zone", nil, "zone filter (repeatable)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "maximum events to request (default from config)")
}

// setupClient loads config, points logging at stderr, and builds a client.
func setupClient() (config.Config, *frigate.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Init(logging.Config{Level: level, Format: "console", Output: os.Stderr})

	client, err := frigate.NewClient(cfg.BaseURL, frigate.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init frigate client: %w", err)
	}
	return cfg, client, nil
}

func printEvents(out io.Writer, events []frigate.Event, loc *time.Location) error {
	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tLENGTH\tCAMERA\tLABEL\tZONES\tSTATE")
	for _, ev := range events {
		state := "ended"
		if ev.InProgress() {
			state = "in progress"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID,
			ev.Started().In(loc).Format("2006-01-02 15:04:05"),
			ev.Duration(now).Round(time.Second),
			ev.Camera,
			ev.Label,
			orDash(strings.Join(ev.Zones, ",")),
			state,
		)
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
