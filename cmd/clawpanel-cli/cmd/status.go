package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clawpanel/clawpanel/internal/observer"
)

var statusOutput string

// statusRecord is the machine-readable form of one channel status.
type statusRecord struct {
	Channel    string `json:"channel" yaml:"channel"`
	Running    bool   `json:"running" yaml:"running"`
	Connected  bool   `json:"connected" yaml:"connected"`
	Identity   string `json:"identity,omitempty" yaml:"identity,omitempty"`
	ObservedAt string `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connected flag and identity of every channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		api, err := newAPIClient(ctx)
		if err != nil {
			return err
		}
		client, err := observer.New(observer.Options{BaseURL: api.baseURL, Token: api.token, HTTPClient: api.http})
		if err != nil {
			return err
		}
		if err := client.PollStatus(ctx); err != nil {
			return err
		}
		statuses := client.Statuses()
		names := make([]string, 0, len(statuses))
		for name := range statuses {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		switch statusOutput {
		case "json", "yaml":
			return writeStatusRecords(out, statusOutput, names, statuses)
		case "", "text":
		default:
			return fmt.Errorf("unknown output format %q", statusOutput)
		}
		fmt.Fprintln(out, headerStyle.Render("Channels"))
		if len(names) == 0 {
			fmt.Fprintln(out, dimStyle.Render("no channel enabled"))
		}
		for _, name := range names {
			fmt.Fprintln(out, formatStatus(name, statuses[name]))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format: text, json or yaml")
}

func writeStatusRecords(w io.Writer, format string, names []string, statuses map[string]observer.ChannelStatus) error {
	records := make([]statusRecord, 0, len(names))
	for _, name := range names {
		st := statuses[name]
		rec := statusRecord{Channel: name, Running: st.Running, Connected: st.Connected}
		if st.Identity != nil {
			rec.Identity = st.Identity.DisplayName
		}
		if !st.ObservedAt.IsZero() {
			rec.ObservedAt = st.ObservedAt.Format(time.RFC3339)
		}
		records = append(records, rec)
	}
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
