package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/store"
)

func newChannelCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage channels and their source asset pools",
	}
	cmd.AddCommand(
		newChannelSetCommand(ctx),
		newChannelListCommand(ctx),
		newChannelAssetCommand(ctx),
		newChannelSubmitCommand(ctx),
	)
	return cmd
}

func newChannelSetCommand(ctx *commandContext) *cobra.Command {
	var (
		owner     string
		name      string
		voiceID   string
		prompt    string
		subreddit string
		automate  bool
	)
	cmd := &cobra.Command{
		Use:   "set <channel-id>",
		Short: "Create or update a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			channel := &store.Channel{
				ID:             args[0],
				OwnerID:        owner,
				Name:           name,
				AutomationOn:   automate,
				VoiceID:        voiceID,
				PromptTemplate: prompt,
				Subreddit:      subreddit,
			}
			if err := rt.store.UpsertChannel(cmd.Context(), channel); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel %s saved\n", channel.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner account id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&voiceID, "voice", "", "speech synthesis voice id")
	cmd.Flags().StringVar(&prompt, "prompt", "", "script prompt template ({idea} is substituted)")
	cmd.Flags().StringVar(&subreddit, "subreddit", "", "subreddit to ingest ideas from")
	cmd.Flags().BoolVar(&automate, "automate", true, "enable automated progression")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newChannelListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			channels, err := rt.store.ActiveChannels(cmd.Context())
			if err != nil {
				return err
			}
			if len(channels) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no active channels")
				return nil
			}
			rows := make([][]string, 0, len(channels))
			for _, channel := range channels {
				rows = append(rows, []string{
					channel.ID,
					channel.Name,
					channel.OwnerID,
					yesNo(channel.AutomationOn),
					channel.VoiceID,
					channel.Subreddit,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Owner", "Automation", "Voice", "Subreddit"}, rows))
			return nil
		},
	}
}

func newChannelAssetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage a channel's source video pool",
	}

	var name string
	add := &cobra.Command{
		Use:   "add <channel-id> <url>",
		Short: "Append a source video to the channel's rotation pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.AddSourceAsset(cmd.Context(), args[0], name, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "asset added to channel %s\n", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "asset display name")

	list := &cobra.Command{
		Use:   "list <channel-id>",
		Short: "List the channel's source video pool in rotation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			assets, err := rt.store.SourceAssets(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(assets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "pool is empty")
				return nil
			}
			rows := make([][]string, 0, len(assets))
			for _, asset := range assets {
				rows = append(rows, []string{
					fmt.Sprintf("%d", asset.Position),
					asset.Name,
					truncate(asset.URL, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Pos", "Name", "URL"}, rows))
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newChannelSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "submit <channel-id> <idea text>",
		Short: "Submit an idea as a new work item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.Close()

			channelID := args[0]
			idea := ""
			for i, arg := range args[1:] {
				if i > 0 {
					idea += " "
				}
				idea += arg
			}
			if owner == "" {
				channel, err := rt.store.GetChannel(cmd.Context(), channelID)
				if err != nil {
					return err
				}
				if channel == nil {
					return fmt.Errorf("channel %s not found; pass --owner to create items without one", channelID)
				}
				owner = channel.OwnerID
			}
			item, err := rt.store.NewItem(cmd.Context(), owner, channelID, idea, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %s created\n", item.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner account id (defaults to the channel's owner)")
	return cmd
}
