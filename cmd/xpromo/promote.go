package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xpromo/internal/promoter"
)

var (
	promoteCount     int
	promoteCreatedBy string
	promoteStance    string
	promoteAgendaID  string
	promotePost      bool
)

// promoteCmd represents the promote command
var promoteCmd = &cobra.Command{
	Use:   "promote [prompt]",
	Short: "Run a promotion campaign for a topic",
	Long: `Run one promotion campaign: generate a search query from the prompt,
fetch recent tweets through the bot pool, classify their sentiment, and
draft one reply per critical tweet.

By default the drafted replies are only printed. Pass --post to enqueue
them as durable delayed jobs; they are delivered by the scheduler, so
keep 'xpromo run' running (or start it afterwards).

Use --agenda to target an existing campaign by id; its stored prompt
and stance are used and the prompt argument may be omitted.`,
	Example: `  # Draft replies without posting
  xpromo promote "my open source project"

  # Schedule the replies, arguing a stance
  xpromo promote "my open source project" --stance "it saves you time" --post

  # Continue an existing campaign
  xpromo promote --agenda 1a2b3c --post`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prompt string
		if len(args) > 0 {
			prompt = strings.TrimSpace(args[0])
		}
		if prompt == "" && promoteAgendaID == "" {
			return fmt.Errorf("provide a prompt or --agenda")
		}

		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.promoter.Promote(context.Background(), promoter.PromoteRequest{
			CreatedBy: promoteCreatedBy,
			Prompt:    prompt,
			Stance:    promoteStance,
			AgendaID:  promoteAgendaID,
			Count:     promoteCount,
			Post:      promotePost,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Campaign:  %s (%s)\n", result.Title, result.AgendaID)
		fmt.Printf("Query:     %s\n", result.Query)
		fmt.Printf("Fetched:   %d tweet(s)\n", result.Fetched)
		if promotePost {
			fmt.Printf("Scheduled: %d reply(ies)\n", result.Scheduled)
			if result.Scheduled > 0 {
				fmt.Println("Run 'xpromo run' to deliver the scheduled replies.")
			}
			return nil
		}

		fmt.Printf("Drafted:   %d reply(ies)\n", len(result.Suggestions))
		for _, s := range result.Suggestions {
			fmt.Printf("\n  tweet %s: %s\n  reply:  %s\n", s.TweetID, s.TweetText, s.Comment)
		}
		if len(result.Suggestions) > 0 {
			fmt.Println("\nRe-run with --post to schedule these replies.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)

	promoteCmd.Flags().IntVar(&promoteCount, "count", 20, "number of tweets to fetch (clamped to 10-100)")
	promoteCmd.Flags().StringVar(&promoteCreatedBy, "created-by", "cli", "campaign owner recorded on the agenda")
	promoteCmd.Flags().StringVar(&promoteStance, "stance", "", "position the campaign argues for")
	promoteCmd.Flags().StringVar(&promoteAgendaID, "agenda", "", "target an existing campaign by id")
	promoteCmd.Flags().BoolVar(&promotePost, "post", false, "schedule the drafted replies instead of only printing them")
}
