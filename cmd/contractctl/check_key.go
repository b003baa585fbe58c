package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"contract-analyzer/internal/llm"
	"contract-analyzer/internal/llm/gemini"
)

// checkKeyBodyLimit caps how much of a failing response is echoed back.
const checkKeyBodyLimit = 200

var (
	checkKeyValue   string
	checkKeyBaseURL string
)

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Validate the Gemini API key against the list-models endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.TrimSpace(checkKeyValue)
		if key == "" {
			key = strings.TrimSpace(cfg.GoogleAPIKey)
		}
		return checkKey(cmd.Context(), cmd.OutOrStdout(), key, checkKeyBaseURL)
	},
}

func init() {
	checkKeyCmd.Flags().StringVar(&checkKeyValue, "key", "", "API key to check (defaults to GOOGLE_API_KEY)")
	checkKeyCmd.Flags().StringVar(&checkKeyBaseURL, "base-url", "", "override the Gemini API base URL")
	_ = checkKeyCmd.Flags().MarkHidden("base-url")
	rootCmd.AddCommand(checkKeyCmd)
}

var errKeyCheckFailed = errors.New("gemini api key check failed")

func checkKey(ctx context.Context, w io.Writer, key, baseURL string) error {
	if key == "" {
		fmt.Fprintln(w, color.FgRed.Render("GOOGLE_API_KEY is not set. Add it to .env or pass --key."))
		return errKeyCheckFailed
	}
	var opts []gemini.Option
	if baseURL != "" {
		opts = append(opts, gemini.WithBaseURL(baseURL))
	}
	client, err := gemini.NewClient(key, nil, opts...)
	if err != nil {
		return err
	}

	models, err := client.ListModels(ctx)
	if err == nil {
		fmt.Fprintf(w, "%s (%d models visible)\n", color.FgGreen.Render("Gemini API key is valid."), len(models))
		return nil
	}

	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		fmt.Fprintf(w, "%s %v\n", color.FgRed.Render("Gemini API request failed:"), err)
		return errKeyCheckFailed
	}
	fmt.Fprintln(w, color.FgRed.Render(fmt.Sprintf("Gemini API key check failed: HTTP %d", statusErr.StatusCode)))
	if hint := statusHint(statusErr.StatusCode); hint != "" {
		fmt.Fprintln(w, hint)
	}
	if body := llm.Truncate(statusErr.Body, checkKeyBodyLimit); body != "" {
		fmt.Fprintf(w, "Response: %s\n", body)
	}
	return errKeyCheckFailed
}

func statusHint(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Key may be missing or malformed."
	case http.StatusForbidden:
		return "Key invalid or Generative Language API not enabled. Enable it at: https://aistudio.google.com/"
	case http.StatusNotFound:
		return "Endpoint or project may be wrong."
	case http.StatusTooManyRequests:
		return "Key is valid but rate limited. Try again later."
	default:
		return ""
	}
}
