package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fpang/docflow/internal/cli"
	"github.com/fpang/docflow/internal/docapi"
	"github.com/fpang/docflow/internal/filehandler"
	"github.com/fpang/docflow/internal/store"
)

const (
	// statusConcurrency caps parallel status requests.
	statusConcurrency = 4
	// statusRPS paces status requests so a long ID list does not burst the API.
	statusRPS = 5
)

var listAllFlag bool

var statusCmd = &cobra.Command{
	Use:   "status <document-id>...",
	Short: "Show the analysis status of one or more documents",
	Args:  cobra.MinimumNArgs(1),
	Run:   runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents on the server",
	Args:  cobra.NoArgs,
	Run:   runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAllFlag, "all", "a", false, "Follow pagination and list every page")
}

func runStatus(cmd *cobra.Command, args []string) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			log.Fatal().Str("arg", arg).Msg("Document ID must be a positive integer")
		}
		ids = append(ids, id)
	}

	ctx := cmd.Context()
	client := cli.InitClient(ctx, cfg.APIURL, resolver)
	token, _ := resolver.AccessToken()
	history := store.NewFileStore(cfg.HistoryFile)

	results := make([]*docapi.StatusResponse, len(ids))
	failures := make([]error, len(ids))

	// A 401 aborts the remaining requests; any other error only marks its row.
	limiter := rate.NewLimiter(rate.Limit(statusRPS), statusConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			resp, err := client.AnalysisStatus(gctx, token, id)
			if err != nil {
				if docapi.IsUnauthorized(err) {
					return err
				}
				failures[i] = err
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if docapi.IsUnauthorized(err) {
			log.Fatal().Err(err).Msg("Session expired; update your access token")
		}
		log.Fatal().Err(err).Msg("Status check interrupted")
	}

	for i, id := range ids {
		if failures[i] != nil {
			fmt.Printf("%-8d  %-14s  %s\n", id, "ERROR", failures[i])
			continue
		}
		resp := results[i]
		status := resp.Document.DocumentStatus
		detail := resp.Document.Title
		if resp.Job != nil && !status.IsTerminal() {
			detail = fmt.Sprintf("%s (job %d%%)", detail, resp.Job.Progress)
		}
		if status == docapi.StatusFailed && resp.Job != nil && resp.Job.Error != "" {
			detail = resp.Job.Error
		}
		fmt.Printf("%-8d  %-14s  %s\n", id, status, detail)

		if err := history.UpdateStatus(ctx, id, string(status), ""); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Int64("documentId", id).Msg("Failed to update history")
		}
	}
}

func runList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	client := cli.InitClient(ctx, cfg.APIURL, resolver)
	token, _ := resolver.AccessToken()

	stats, err := client.Overview(ctx, token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load overview")
	}
	fmt.Printf("%d documents: %d ready, %d processing, %d with errors\n\n",
		stats.TotalDocuments, stats.Ready, stats.Processing, stats.Errors)

	fmt.Printf("%-8s  %-14s  %-10s  %s\n", "ID", "STATUS", "SIZE", "TITLE")
	fmt.Println(strings.Repeat("-", 60))

	next := ""
	for {
		page, err := client.ListDocuments(ctx, token, next)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list documents")
		}
		for _, doc := range page.Results {
			title := doc.Title
			if title == "" {
				title = doc.OriginalName
			}
			fmt.Printf("%-8d  %-14s  %-10s  %s\n", doc.ID, doc.Status, filehandler.FormatBytes(doc.FileSize), title)
		}
		if !listAllFlag || page.Next == nil || *page.Next == "" {
			if page.Next != nil && *page.Next != "" {
				fmt.Printf("\n%d of %d shown; use --all to list every page.\n", len(page.Results), page.Count)
			}
			return
		}
		next = *page.Next
	}
}
