package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fpang/docflow/internal/cli"
	"github.com/fpang/docflow/internal/config"
	"github.com/fpang/docflow/internal/filehandler"
	"github.com/fpang/docflow/internal/store"
)

var (
	forgetFlag    bool
	showDeleted   bool
	overwriteFlag bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document on the server",
	Args:  cobra.ExactArgs(1),
	Run:   runDelete,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show documents uploaded from this machine",
	Args:  cobra.NoArgs,
	Run:   runHistory,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the docflow config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective settings to the config file",
	Args:  cobra.NoArgs,
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	Run:   runConfigShow,
}

func init() {
	deleteCmd.Flags().BoolVar(&forgetFlag, "forget", false, "Also remove the document from local history")
	historyCmd.Flags().BoolVar(&showDeleted, "deleted", false, "Include deleted documents")
	configInitCmd.Flags().BoolVar(&overwriteFlag, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runDelete(cmd *cobra.Command, args []string) {
	documentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || documentID <= 0 {
		log.Fatal().Str("arg", args[0]).Msg("Document ID must be a positive integer")
	}

	ctx := cmd.Context()
	client := cli.InitClient(ctx, cfg.APIURL, resolver)
	token, _ := resolver.AccessToken()

	if err := client.DeleteDocument(ctx, token, documentID); err != nil {
		log.Fatal().Err(err).Int64("documentId", documentID).Msg("Failed to delete document")
	}
	fmt.Printf("Deleted document %d.\n", documentID)

	history := store.NewFileStore(cfg.HistoryFile)
	if forgetFlag {
		if err := history.Remove(ctx, documentID); err != nil {
			log.Warn().Err(err).Msg("Failed to update history")
		}
		return
	}
	markDeleted(ctx, history, documentID)
}

func runHistory(cmd *cobra.Command, args []string) {
	history := store.NewFileStore(cfg.HistoryFile)
	records, err := history.List(cmd.Context())
	if err != nil {
		log.Fatal().Err(err).Str("path", history.Path()).Msg("Failed to read history")
	}

	shown := 0
	for _, rec := range records {
		if rec.Deleted && !showDeleted {
			continue
		}
		if shown == 0 {
			fmt.Printf("%-8s  %-14s  %-10s  %-16s  %s\n", "ID", "STATUS", "SIZE", "UPLOADED", "FILE")
		}
		status := rec.Status
		if rec.Deleted {
			status = "DELETED"
		}
		fmt.Printf("%-8d  %-14s  %-10s  %-16s  %s\n",
			rec.DocumentID, status, filehandler.FormatBytes(rec.Size),
			rec.UploadedAt.Local().Format("2006-01-02 15:04"), rec.FileName)
		if rec.Message != "" {
			fmt.Printf("          %s\n", rec.Message)
		}
		shown++
	}
	if shown == 0 {
		fmt.Println("No uploads recorded yet.")
	}
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configPath()
	if _, err := os.Stat(path); err == nil && !overwriteFlag {
		log.Fatal().Str("path", path).Msg("Config file already exists; use --force to overwrite")
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to check config file")
	}
	if err := config.Write(path, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to write config")
	}
	fmt.Printf("Wrote %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode config")
	}
	fmt.Printf("# %s\n%s", configPath(), data)
}
