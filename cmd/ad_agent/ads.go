package main

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/ad-dashboard/internal/client"
	"github.com/jonathan/ad-dashboard/internal/dashboard"
	"github.com/jonathan/ad-dashboard/internal/progress"
	"github.com/jonathan/ad-dashboard/internal/tracker"
	"github.com/jonathan/ad-dashboard/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	createName  string
	createDesc  string
	createWatch bool

	listStatus string
	listSearch string
	listSort   string

	statusJSON bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Start generating a video ad from a product brief",
	Args:  cobra.NoArgs,
	RunE:  runCreate,
}

var showCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show an ad and its video link",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your ads",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status <run_id>",
	Short: "Show the current progress of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var videoCmd = &cobra.Command{
	Use:   "video <run_id>",
	Short: "Print a playable link to an ad's video, waiting for it if needed",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideo,
}

func init() {
	createCmd.Flags().StringVarP(&createName, "name", "n", "", "Product name")
	createCmd.Flags().StringVarP(&createDesc, "desc", "d", "", "Product description (at least 10 characters)")
	createCmd.Flags().BoolVarP(&createWatch, "watch", "w", false, "Follow the run until it finishes")

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status: all, in_progress, generated or failed")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only ads whose name or description contains this text")
	listCmd.Flags().StringVar(&listSort, "sort", "", "Order: newest, oldest or name")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the progress snapshot as JSON")

	rootCmd.AddCommand(createCmd, showCmd, listCmd, statusCmd, videoCmd)
}

func runCreate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.api.CreateAd(cmd.Context(), types.CreateAdRequest{Name: createName, Desc: createDesc})
	if err != nil {
		return fmt.Errorf("failed to create ad: %w", err)
	}
	a.log.WithField("run_id", resp.RunID).Info("generation started")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started run %s\n", resp.RunID)

	if !createWatch {
		return nil
	}
	return a.watch(cmd.Context(), []string{resp.RunID}, a.cfg.PollInterval.Std(), true)
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ad, err := a.api.GetAd(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var videoURL string
	if ad.Status.Is(types.AdStatusGenerated) {
		if videoURL, err = a.api.GetVideoURL(cmd.Context(), ad.RunID); err != nil && !client.IsNotFound(err) {
			return fmt.Errorf("failed to get video URL: %w", err)
		}
	}
	a.out.PrintAd(ad, videoURL)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	q, err := dashboard.ParseQuery(listStatus, listSearch, listSort)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ads, err := dashboard.List(cmd.Context(), a.api, q)
	if err != nil {
		return err
	}
	a.out.PrintAds(fmt.Sprintf("ADS (%s, %s)", q.Filter, q.Sort), ads)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.api.FetchRecord(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	snap := progress.NewSnapshot(args[0], rec)

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	a.out.PrintSteps(snap)
	return nil
}

func runVideo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	t := tracker.New(a.api,
		tracker.WithInterval(a.cfg.PollInterval.Std()),
		tracker.WithLogger(logrus.NewEntry(a.log)),
	)
	result, err := t.Resolve(cmd.Context(), args[0], newProgressObserver(a.out, false))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.VideoURL)
	return nil
}
